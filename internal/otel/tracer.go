package otel

import (
	"go.opentelemetry.io/otel"

	"github.com/pratama/storefront/internal/common"
)

var Tracer = otel.Tracer(common.AppStorefrontEngine)
