package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonhub_schedules_created_total",
		Help: "Schedules successfully booked, recurring occurrences included.",
	})
	schedulesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonhub_schedules_cancelled_total",
		Help: "Schedules cancelled by students or admins.",
	})
	bookingsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonhub_bookings_rejected_total",
		Help: "Booking requests rejected, by reason.",
	}, []string{"reason"})
)
