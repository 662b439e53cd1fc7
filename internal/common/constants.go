package common

const (
	AppStorefrontEngine = "storefront-engine"
	AppPushListener     = "push-listener"
)
