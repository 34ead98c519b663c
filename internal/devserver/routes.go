package devserver

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Route path constants, mounted under APIPrefix.
const (
	APIPrefix = "/api"

	RouteCaptcha    = "/captcha"
	RouteLogin      = "/login"
	RouteRegister   = "/register"
	RouteLogout     = "/logout"
	RouteRefresh    = "/token/refresh"
	RouteVerifyCode = "/verify/email"
	RouteStudyPlans = "/study-plans"
	RouteUsers      = "/users"
)

func (s *Server) initRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   s.allowedMethods,
		AllowedHeaders:   s.allowedHeaders,
		AllowCredentials: true,
		MaxAge:           60 * 15,
	}))

	r.Route(APIPrefix, func(api chi.Router) {
		api.Get(RouteCaptcha, s.captchaHandler)
		api.Post(RouteLogin, s.loginHandler)
		api.Post(RouteRegister, s.registerHandler)
		api.Post(RouteLogout, s.logoutHandler)
		api.Post(RouteRefresh, s.refreshHandler)
		api.Post(RouteVerifyCode, s.verifyCodeHandler)

		api.Group(func(protected chi.Router) {
			protected.Use(s.requireAuth)
			protected.Get(RouteStudyPlans, s.studyPlansHandler)
			protected.Post(RouteStudyPlans, s.createStudyPlanHandler)
			protected.With(s.requireRole(RoleAdmin)).Get(RouteUsers, s.listUsersHandler)
		})
	})
	return r
}
