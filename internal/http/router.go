// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GroupeBH/zwanga-sub000/internal/http/handlers"
	"github.com/GroupeBH/zwanga-sub000/internal/http/middleware"
)

func NewRouter(deps ServerDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging(), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	requests := handlers.NewRequestHandler(deps.Requests, deps.Discovery)
	api.POST("/requests", requests.Create)
	api.GET("/requests", requests.ListMine)
	api.GET("/requests/nearby", requests.Nearby)
	api.GET("/requests/:id", requests.Get)
	api.POST("/requests/:id/cancel", requests.Cancel)
	api.POST("/requests/:id/offers", requests.SubmitOffer)
	api.GET("/requests/:id/offers", requests.ListOffers)
	api.POST("/requests/:id/offers/:offer_id/accept", requests.AcceptOffer)
	api.POST("/requests/:id/offers/:offer_id/reject", requests.RejectOffer)
	api.POST("/requests/:id/offers/:offer_id/withdraw", requests.WithdrawOffer)
	api.POST("/requests/:id/start-trip", requests.StartTrip)

	trips := handlers.NewTripHandler(deps.Trips)
	api.POST("/trips", trips.Create)
	api.GET("/trips", trips.ListMine)
	api.GET("/trips/:id", trips.Get)
	api.POST("/trips/:id/start", trips.Start)
	api.POST("/trips/:id/complete", trips.Complete)
	api.POST("/trips/:id/cancel", trips.Cancel)
	api.PUT("/trips/:id/progress", trips.UpdateProgress)

	bookings := handlers.NewBookingHandler(deps.Bookings, deps.Trips)
	api.POST("/trips/:id/bookings", bookings.Create)
	api.GET("/trips/:id/bookings", bookings.ListByTrip)
	api.GET("/bookings", bookings.ListMine)
	api.POST("/bookings/:id/accept", bookings.Accept)
	api.POST("/bookings/:id/reject", bookings.Reject)
	api.POST("/bookings/:id/cancel", bookings.Cancel)
	api.POST("/bookings/:id/driver/pickup", bookings.DriverPickup)
	api.POST("/bookings/:id/driver/dropoff", bookings.DriverDropoff)
	api.POST("/bookings/:id/rider/pickup", bookings.RiderPickup)
	api.POST("/bookings/:id/rider/dropoff", bookings.RiderDropoff)

	live := handlers.NewLiveHandler(deps.Live, deps.AllowedOrigins)
	api.GET("/trips/:id/live", live.Serve)

	drivers := handlers.NewDriverHandler(deps.Drivers)
	api.PUT("/drivers/me/availability", drivers.SetAvailability)

	places := handlers.NewPlacesHandler(deps.Places)
	api.GET("/places", places.Search)

	assistant := handlers.NewAssistantHandler(deps.Assistant)
	api.POST("/assistant/draft", assistant.Draft)

	return r
}
