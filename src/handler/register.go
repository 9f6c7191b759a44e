package handler

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// abiSignature matches "name" or "name(type,type)".
var abiSignature = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\([A-Za-z0-9_,\[\] ]*\))?$`)

type RouteConfig struct {
	RelayService  RelayService
	DefaultTarget common.Address
	HealthChecks  map[string]HealthCheck
	Metrics       prometheus.Gatherer
	// APISecret enables the X-API-Secret check on relay endpoints when set.
	APISecret    string
	AllowOrigins []string
}

// registerValidations adds the custom binding tags to gin's validator engine.
func registerValidations(engine any) error {
	v, ok := engine.(*validator.Validate)
	if !ok {
		return fmt.Errorf("unsupported validator engine %T", engine)
	}
	if err := v.RegisterValidation("abi_sig", func(fl validator.FieldLevel) bool {
		return abiSignature.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register abi_sig validation: %w", err)
	}
	return nil
}

func RegisterRoutes(ctx context.Context, router *gin.Engine, config RouteConfig) {
	// keep JSON numbers exact so uint256 arguments survive decoding
	binding.EnableDecoderUseNumber = true

	if err := registerValidations(binding.Validator.Engine()); err != nil {
		panic(err)
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.AllowOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-API-Secret", "X-Request-ID"}
	if len(config.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	SetMiddlewares(ctx, router)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if config.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(config.Metrics, promhttp.HandlerOpts{})))
	}

	relayHandler := NewRelayHandler(config.RelayService, config.DefaultTarget)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handleHealthCheck(config.HealthChecks))

		relays := v1.Group("/relays")
		if config.APISecret != "" {
			relays.Use(SharedSecretMiddleware(config.APISecret))
		}
		relays.POST("", relayHandler.CreateRelay)
		relays.GET("/:id", relayHandler.GetRelay)
	}
}
