package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/juaniAla/turnosColMag/internal/directory"
	httpmiddleware "github.com/juaniAla/turnosColMag/internal/http/middleware"
	"github.com/juaniAla/turnosColMag/internal/turnos"
	"github.com/juaniAla/turnosColMag/internal/wizard"
	"github.com/juaniAla/turnosColMag/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	WizardHandler    *wizard.Handler
	TurnosHandler    *turnos.Handler
	DirectoryHandler *directory.Handler
	MetricsHandler   http.Handler

	// ActorJWTSecret signs the staff tokens. Empty disables staff routes.
	ActorJWTSecret     string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: the booking wizard and the directory lookups that
	// feed its selection screens.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		if w := cfg.WizardHandler; w != nil {
			public.Route("/turnos-web", func(r chi.Router) {
				r.Post("/solicitante", w.Begin)
				r.Get("/{draftID}", w.GetDraft)
				r.Post("/{draftID}/oficina", w.SelectOffice)
				r.Post("/{draftID}/fecha-hora", w.SelectDateTime)
				r.Post("/{draftID}/confirmacion", w.Confirm)

				r.Route("/oficinas/{oficinaID}", func(r chi.Router) {
					r.Get("/dias-libres", w.FreeDates)
					r.Get("/dias-ocupados", w.FullyBookedDates)
					r.Get("/horas-libres", w.FreeTimes)
				})
				r.Get("/organismos/{organismoID}/ultimo-solicitante", w.Prefill)
			})
		}

		if d := cfg.DirectoryHandler; d != nil {
			public.Route("/directorio", func(r chi.Router) {
				r.Get("/circunscripciones", d.Circunscripciones)
				r.Get("/circunscripciones/{id}/localidades", d.Localidades)
				r.Get("/localidades/{id}/oficinas", d.Oficinas)
				r.Get("/organismos", d.Organismos)
			})
		}
	})

	// Staff endpoints behind the actor JWT.
	if t := cfg.TurnosHandler; t != nil {
		r.Route("/turnos", func(r chi.Router) {
			r.Use(httpmiddleware.ActorJWT(cfg.ActorJWTSecret))
			r.Get("/", t.List)
			r.Get("/ocupacion", t.Occupancy)
			r.Post("/scan", t.Scan)
			r.Put("/{id}/atendido", t.ToggleAttendance)
			r.Put("/{id}/no-asistido", t.MarkAbsent)
			r.Post("/{id}/rechazo", t.Reject)
			r.Delete("/{id}", t.Delete)
			r.Get("/{id}/comprobante", t.Receipt)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
