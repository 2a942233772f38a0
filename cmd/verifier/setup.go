package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/crypto/bcrypt"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/config"
	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/dynamo"
	"github.com/sequentech/message-otp/internal/postgres"
	"github.com/sequentech/message-otp/internal/redis"
	"github.com/sequentech/message-otp/internal/server"
	"github.com/sequentech/message-otp/internal/verifier/adapter"
	"github.com/sequentech/message-otp/internal/verifier/app"
	"github.com/sequentech/message-otp/internal/verifier/port"
)

// accountStore is what both account directory backends provide.
type accountStore interface {
	app.AccountDirectory
	app.PasswordVerifier
}

// setup is the verifier composition root. It creates infrastructure
// clients, adapters, couriers, ticket signing and the HTTP handler.
func setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Service, error) {
	flows, err := buildFlows(cfg)
	if err != nil {
		return nil, fmt.Errorf("verifier setup: %w", err)
	}
	bruteForce := cfg.BruteForce.Policy()
	if err := bruteForce.Validate(); err != nil {
		return nil, fmt.Errorf("verifier setup: bruteforce: %w", err)
	}

	// 1. Infrastructure clients.
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("verifier setup: %w", err)
	}

	dynamoClient, err := dynamo.NewClient(ctx, dynamo.Config{
		Endpoint: cfg.DynamoDB.Endpoint,
		Region:   cfg.AWS.Region,
		Timeout:  cfg.DynamoDB.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("verifier setup: create dynamo client: %w", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password.Expose(),
		DB:           cfg.Redis.DB,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})
	closers := []func() error{redisClient.Close}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	// 2. Adapters.
	clock := domain.RealClock{}
	hasher := auth.NewPasswordHasher(bcrypt.DefaultCost)

	var accounts accountStore
	switch cfg.Accounts.Backend {
	case config.BackendPostgres:
		pg, err := postgres.NewClient(ctx, postgres.Config{
			DSN:         cfg.Postgres.DSN.Expose(),
			MaxConns:    cfg.Postgres.MaxConns,
			MinConns:    cfg.Postgres.MinConns,
			PingTimeout: cfg.Postgres.Timeout,
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("verifier setup: %w", err), closeAll())
		}
		closers = append(closers, func() error { pg.Close(); return nil })
		accounts = adapter.NewPostgresAccountDirectory(pg.Pool, hasher)
	default:
		accounts = adapter.NewDynamoAccountDirectory(dynamoClient.DB,
			cfg.DynamoDB.AccountsTable, cfg.DynamoDB.AttributesTable, hasher)
	}

	notes := adapter.NewRedisNoteStore(redisClient.RDB, cfg.Verifier.NotesTTL)
	loginFailures := adapter.NewRedisLoginFailureStore(redisClient.RDB, cfg.BruteForce.Retention)
	credentialStore := adapter.NewDynamoCredentialStore(dynamoClient.DB, cfg.DynamoDB.CredentialsTable)

	// 3. Couriers and ticket keys (environment-dependent).
	courier, err := createCourier(cfg, awsCfg, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("verifier setup: %w", err), closeAll())
	}

	keyStore, err := createKeyStore(ctx, cfg, awsCfg, clock, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("verifier setup: create key store: %w", err), closeAll())
	}
	ticketCfg := auth.TicketConfig{
		KeyStore: keyStore,
		TTL:      cfg.Tickets.TTL,
		Issuer:   cfg.Tickets.Issuer,
		Audience: cfg.Tickets.Audience,
		Clock:    clock,
	}

	// 4. Verification service.
	svc := app.NewService(app.ServiceConfig{
		Notes:          notes,
		Accounts:       accounts,
		Credentials:    credentialStore,
		LoginFailures:  loginFailures,
		Passwords:      accounts,
		Courier:        courier,
		Clock:          clock,
		Logger:         logger,
		RealmName:      cfg.Verifier.RealmName,
		CourierTimeout: cfg.Verifier.CourierTimeout,
	})

	// 5. HTTP port.
	handler := port.NewHandler(port.HandlerConfig{
		Service:    svc,
		Minter:     auth.NewTicketMinter(ticketCfg),
		Validator:  auth.NewTicketValidator(ticketCfg),
		Flows:      flows,
		BruteForce: bruteForce,
		Logger:     logger,
	})

	logger.InfoContext(ctx, "verifier service initialized",
		slog.String("accounts_backend", cfg.Accounts.Backend),
		slog.String("delivery", cfg.Verifier.Delivery),
	)

	return &server.Service{
		Routes: handler.Register,
		Checks: []server.Check{{Name: "redis", Probe: redisClient.Ping}},
		Close:  closeAll,
	}, nil
}

// buildFlows maps the {type} path segment to a configured flow.
func buildFlows(cfg *config.Config) (map[string]app.Flow, error) {
	email := app.EmailFlow(cfg.Verification.Email.Policy())
	mobile := app.MobileFlow(cfg.Verification.Mobile.Policy(), cfg.Verification.Mobile.Attribute)

	flows := map[string]app.Flow{"email": email, "mobile": mobile}
	settings := map[string]config.TypeConfig{
		"email":  cfg.Verification.Email,
		"mobile": cfg.Verification.Mobile,
	}

	for name, flow := range flows {
		courier, err := domain.ParseCourier(settings[name].Courier)
		if err != nil {
			return nil, fmt.Errorf("verification.%s.courier: %w", name, err)
		}
		flow.Type.Courier = courier
		flow.ReuseAttribute = settings[name].ReuseAttribute
		if err := flow.Validate(); err != nil {
			return nil, fmt.Errorf("verification.%s: %w", name, err)
		}
		flows[name] = flow
	}
	return flows, nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWS.Region)}
	if cfg.AWS.Endpoint != "" {
		opts = append(opts,
			awsconfig.WithBaseEndpoint(cfg.AWS.Endpoint),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")),
		)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}

// createCourier returns the delivery courier for the environment.
// "log" delivery writes codes to the communications log; "live" sends SMS
// through SNS and email through SMTP, falling back to the log courier for
// email when no SMTP host is configured.
func createCourier(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (*adapter.RoutingCourier, error) {
	catalog, err := adapter.NewCatalog(nil)
	if err != nil {
		return nil, fmt.Errorf("load message catalog: %w", err)
	}

	if cfg.Verifier.Delivery == config.DeliveryLog {
		logger.Info("using log-only delivery; codes are not sent")
		logCourier := adapter.NewLogCourier(catalog, logger)
		return adapter.NewRoutingCourier(logCourier, logCourier), nil
	}

	sms := adapter.NewSNSCourier(sns.NewFromConfig(awsCfg), catalog, adapter.SNSCourierConfig{
		SenderID:   cfg.SNS.SenderID,
		MaxRetries: cfg.SNS.MaxRetries,
		RetryBase:  cfg.SNS.RetryBase,
	}, logger)

	var email auth.Courier
	if cfg.SMTP.Host == "" {
		logger.Warn("smtp.host not set, email codes go to the log only")
		email = adapter.NewLogCourier(catalog, logger)
	} else {
		dialer := adapter.NewSMTPDialer(adapter.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		email = adapter.NewSMTPCourier(dialer, cfg.SMTP.From, catalog, logger)
	}

	return adapter.NewRoutingCourier(email, sms), nil
}

// createKeyStore returns the flow ticket key store. "ephemeral" generates a
// key pair at startup, so tickets do not survive a restart and cannot be
// validated by other replicas.
func createKeyStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config, clock domain.Clock, logger *slog.Logger) (auth.KeyStore, error) {
	if cfg.Tickets.Keys == config.TicketKeysEphemeral {
		keyStore, err := auth.NewEphemeralKeyStore(cfg.Tickets.KeyID)
		if err != nil {
			return nil, err
		}
		logger.Info("using ephemeral ticket key", slog.String("key_id", cfg.Tickets.KeyID))
		return keyStore, nil
	}

	keyStore, err := adapter.NewAWSKeyStore(ctx,
		secretsmanager.NewFromConfig(awsCfg),
		ssm.NewFromConfig(awsCfg),
		adapter.DefaultAWSKeyStoreConfig(),
		clock,
	)
	if err != nil {
		return nil, err
	}
	return keyStore, nil
}
