package session

import "github.com/prometheus/client_golang/prometheus"

var (
	activeRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "game_active_rooms",
		Help: "Rooms currently held in memory",
	})
	phaseStarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "game_phase_starts_total",
		Help: "Phase starts by kind",
	}, []string{"kind"})
	gamesFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "game_finished_total",
		Help: "Finished games by winner",
	}, []string{"winner"})
)

func init() {
	prometheus.MustRegister(activeRooms, phaseStarts, gamesFinished)
}
