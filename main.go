package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"outreach/config"
	"outreach/dep"
	"outreach/dispatch"
	"outreach/handler"
	"outreach/middleware"
	"outreach/pkg/logutil"
	"outreach/pkg/mq"
	"outreach/pkg/router"
	"outreach/pkg/service"
	"outreach/pkg/unsubscribe"
	"outreach/repo"
)

type server struct {
	ctx context.Context
	opt *config.Option
	cfg *config.Config

	baseRepo     repo.BaseRepo
	emailLogRepo repo.EmailLogRepo
	templateRepo repo.TemplateRepo
	contactRepo  repo.ContactRepo
	operatorRepo repo.OperatorRepo
	sessionRepo  repo.SessionRepo
	lockRepo     repo.LockRepo

	emailService dep.EmailService
	producer     *mq.Producer

	// api handlers
	emailHandler    handler.EmailHandler
	templateHandler handler.TemplateHandler
	contactHandler  handler.ContactHandler
	trackingHandler handler.TrackingHandler
	operatorHandler handler.OperatorHandler
}

func main() {
	s := new(server)
	if err := service.Run(s); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

func (s *server) Init() error {
	opt := config.NewOptions()

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		opt.LogLevel = logLevel
	}

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		opt.ConfigPath = configPath
	}

	if serverPort := os.Getenv("PORT"); serverPort != "" {
		if port, err := strconv.Atoi(serverPort); err == nil {
			opt.Port = port
		}
	}

	s.opt = opt

	return nil
}

func (s *server) Start() error {
	var err error

	// ====== init logger ===== //

	s.ctx = logutil.InitZeroLog(context.Background(), s.opt.LogLevel)

	// ===== init config ===== //

	s.cfg = config.NewConfig()
	if err = s.cfg.Load(s.ctx, s.opt.ConfigPath); err != nil {
		log.Ctx(s.ctx).Error().Msgf("load config failed, err: %v", err)
		return err
	}

	// ===== init repos ===== //

	s.baseRepo, err = repo.NewBaseRepo(s.ctx, s.cfg.MetadataDB)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init base repo failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil && s.baseRepo != nil {
			if err := s.baseRepo.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close base repo failed, err: %v", err)
				return
			}
		}
	}()

	s.emailLogRepo = repo.NewEmailLogRepo(s.ctx, s.baseRepo)
	s.templateRepo = repo.NewTemplateRepo(s.ctx, s.baseRepo)
	s.contactRepo = repo.NewContactRepo(s.ctx, s.baseRepo)
	s.operatorRepo = repo.NewOperatorRepo(s.ctx, s.baseRepo)
	s.sessionRepo = repo.NewSessionRepo(s.ctx, s.baseRepo)

	// lock repo, shared across instances only when redis is configured
	if s.cfg.Redis.Addr != "" {
		s.lockRepo = repo.NewRedisLockRepo(s.ctx, redis.NewClient(&redis.Options{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
		}))
	} else {
		log.Ctx(s.ctx).Warn().Msg("redis not configured, resend locks are local to this instance")
		s.lockRepo = repo.NewMemLockRepo(s.ctx)
	}
	defer func() {
		if err != nil && s.lockRepo != nil {
			if err := s.lockRepo.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close lock repo failed, err: %v", err)
				return
			}
		}
	}()

	// ===== init deps ===== //

	s.emailService, err = dep.NewEmailService(s.ctx, s.cfg)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init email service failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil && s.emailService != nil {
			if err := s.emailService.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close email service failed, err: %v", err)
				return
			}
		}
	}()

	signer, err := unsubscribe.NewSigner(s.cfg.Unsubscribe.Secret, s.cfg.Unsubscribe.TTL())
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init unsubscribe signer failed, err: %v", err)
		return err
	}

	if s.cfg.Tracking.Enabled() {
		s.producer, err = mq.NewProducer(s.ctx, mq.ProducerConfig{
			Brokers: s.cfg.Tracking.Brokers,
			Topics: map[uint32]string{
				uint32(mq.PayloadTrackingEvent): s.cfg.Tracking.Topic,
			},
		})
		if err != nil {
			log.Ctx(s.ctx).Error().Msgf("init tracking producer failed, err: %v", err)
			return err
		}
	}

	// ===== init dispatch ===== //

	var (
		footerInjector = dispatch.NewFooterInjector(signer, s.cfg.WebPages, s.cfg.Footer)
		dispatcher     = dispatch.NewDispatcher(s.emailService, s.cfg.Dispatch)
		reconciler     = dispatch.NewReconciler(s.emailLogRepo, s.contactRepo, s.lockRepo,
			dispatcher, footerInjector, s.cfg.Dispatch.ResendLockTTL())
		tracker = dispatch.NewTracker(s.emailLogRepo)
	)

	// ===== init handlers ===== //

	s.emailHandler = handler.NewEmailHandler(s.emailService, dispatcher, reconciler, footerInjector,
		s.emailLogRepo, s.templateRepo, s.contactRepo)
	s.templateHandler = handler.NewTemplateHandler(s.templateRepo)
	s.contactHandler = handler.NewContactHandler(s.contactRepo, s.templateRepo, dispatcher, reconciler, footerInjector, signer)
	s.operatorHandler = handler.NewOperatorHandler(s.operatorRepo, s.sessionRepo)
	if s.producer != nil {
		s.trackingHandler = handler.NewTrackingHandler(tracker, s.producer)
	} else {
		s.trackingHandler = handler.NewTrackingHandler(tracker, nil)
	}

	// ===== start server ===== //

	go func() {
		addr := fmt.Sprintf(":%d", s.opt.Port)

		log.Info().Msgf("starting HTTP server at %s", addr)

		httpServer := &http.Server{
			BaseContext: func(_ net.Listener) context.Context {
				return s.ctx
			},
			Addr:    addr,
			Handler: s.withCors(middleware.Log(s.registerRoutes())),
		}
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fail to start HTTP server, err: %v", err)
		}
	}()

	return nil
}

func (s *server) Stop() error {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close tracking producer failed, err: %v", err)
			return err
		}
	}

	if s.emailService != nil {
		if err := s.emailService.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close email service failed, err: %v", err)
			return err
		}
	}

	if s.lockRepo != nil {
		if err := s.lockRepo.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close lock repo failed, err: %v", err)
			return err
		}
	}

	if s.baseRepo != nil {
		if err := s.baseRepo.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close base repo failed, err: %v", err)
			return err
		}
	}

	return nil
}

func (s *server) withCors(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Cors.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", router.HeaderSessionID},
		AllowCredentials: true,
	}).Handler(next)
}

type HealthCheckRequest struct{}

type HealthCheckResponse struct{}

func (s *server) registerRoutes() http.Handler {
	r := &router.HttpRouter{
		Router: mux.NewRouter(),
	}

	sessionMiddleware := router.NewSessionMiddleware(s.operatorRepo, s.sessionRepo)

	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathHealthCheck,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(HealthCheckRequest),
			Res: new(HealthCheckResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return nil
			},
		},
	})

	// ===== public routes ===== //

	// log_in
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathLogIn,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.LogInRequest),
			Res: new(handler.LogInResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.operatorHandler.LogIn(ctx, req.(*handler.LogInRequest), res.(*handler.LogInResponse))
			},
		},
	})

	// unsubscribe, reached from the link in the email footer
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathUnsubscribe,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.UnsubscribeRequest),
			Res: new(handler.UnsubscribeResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.contactHandler.Unsubscribe(ctx, req.(*handler.UnsubscribeRequest), res.(*handler.UnsubscribeResponse))
			},
		},
	})

	// on_email_event, called by the provider webhook
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathOnEmailEvent,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.OnEmailEventRequest),
			Res: new(handler.OnEmailEventResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.trackingHandler.OnEmailEvent(ctx, req.(*handler.OnEmailEventRequest), res.(*handler.OnEmailEventResponse))
			},
		},
	})

	// ===== operator routes ===== //

	// log_out
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathLogOut,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.LogOutRequest),
			Res: new(handler.LogOutResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.operatorHandler.LogOut(ctx, req.(*handler.LogOutRequest), res.(*handler.LogOutResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// send_email
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathSendEmail,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.SendEmailRequest),
			Res: new(handler.SendEmailResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.emailHandler.SendEmail(ctx, req.(*handler.SendEmailRequest), res.(*handler.SendEmailResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// send_bulk_emails
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathSendBulkEmails,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.SendBulkEmailsRequest),
			Res: new(handler.SendBulkEmailsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.emailHandler.SendBulkEmails(ctx, req.(*handler.SendBulkEmailsRequest), res.(*handler.SendBulkEmailsResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// resend_failed_emails
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathResendFailedEmails,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.ResendFailedEmailsRequest),
			Res: new(handler.ResendFailedEmailsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.emailHandler.ResendFailedEmails(ctx, req.(*handler.ResendFailedEmailsRequest), res.(*handler.ResendFailedEmailsResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// test_email_connection
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathTestEmailConn,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.TestEmailConnectionRequest),
			Res: new(handler.TestEmailConnectionResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.emailHandler.TestEmailConnection(ctx, req.(*handler.TestEmailConnectionRequest), res.(*handler.TestEmailConnectionResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// get_email_logs
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetEmailLogs,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetEmailLogsRequest),
			Res: new(handler.GetEmailLogsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.emailHandler.GetEmailLogs(ctx, req.(*handler.GetEmailLogsRequest), res.(*handler.GetEmailLogsResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// get_email_log
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetEmailLog,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetEmailLogRequest),
			Res: new(handler.GetEmailLogResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.emailHandler.GetEmailLog(ctx, req.(*handler.GetEmailLogRequest), res.(*handler.GetEmailLogResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// get_email_stats
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetEmailStats,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetEmailStatsRequest),
			Res: new(handler.GetEmailStatsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.emailHandler.GetEmailStats(ctx, req.(*handler.GetEmailStatsRequest), res.(*handler.GetEmailStatsResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// create_template
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathCreateTemplate,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.CreateTemplateRequest),
			Res: new(handler.CreateTemplateResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.templateHandler.CreateTemplate(ctx, req.(*handler.CreateTemplateRequest), res.(*handler.CreateTemplateResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// get_template
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetTemplate,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetTemplateRequest),
			Res: new(handler.GetTemplateResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.templateHandler.GetTemplate(ctx, req.(*handler.GetTemplateRequest), res.(*handler.GetTemplateResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// get_templates
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetTemplates,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetTemplatesRequest),
			Res: new(handler.GetTemplatesResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.templateHandler.GetTemplates(ctx, req.(*handler.GetTemplatesRequest), res.(*handler.GetTemplatesResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// preview_template
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathPreviewTemplate,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.PreviewTemplateRequest),
			Res: new(handler.PreviewTemplateResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.templateHandler.PreviewTemplate(ctx, req.(*handler.PreviewTemplateRequest), res.(*handler.PreviewTemplateResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	// create_contact
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathCreateContact,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.CreateContactRequest),
			Res: new(handler.CreateContactResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.contactHandler.CreateContact(ctx, req.(*handler.CreateContactRequest), res.(*handler.CreateContactResponse))
			},
		},
		Middlewares: []router.Middleware{sessionMiddleware},
	})

	return r
}
