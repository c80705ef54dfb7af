package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nobat",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nobat",
			Name:      "bookings_total",
			Help:      "Booked slots by mode.",
		},
		[]string{"mode"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nobat",
			Name:      "booking_conflicts_total",
			Help:      "Bookings lost to an already-taken slot.",
		},
	)

	paymentOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nobat",
			Name:      "payment_operations_total",
			Help:      "Gateway operations by operation and result.",
		},
		[]string{"operation", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookings, bookingConflicts, paymentOps)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncBookings counts booked slots for a booking mode.
func IncBookings(mode string, n int) {
	bookings.WithLabelValues(mode).Add(float64(n))
}

// IncBookingConflict counts a lost slot race.
func IncBookingConflict() {
	bookingConflicts.Inc()
}

// IncPaymentOp counts a gateway operation outcome.
func IncPaymentOp(operation, result string) {
	paymentOps.WithLabelValues(operation, result).Inc()
}
