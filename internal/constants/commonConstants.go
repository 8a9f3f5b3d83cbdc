package constants

type (
	APIStatus   string
	CachePrefix string
)

const (
	APIStatusOk    APIStatus = "ok"
	APIStatusError APIStatus = "error"

	CachePrefixContactEmail  CachePrefix = "CONTACT_EMAIL_"
	CachePrefixPipelineStage CachePrefix = "PIPELINE_FIRST_STAGE_"
)

// Redis stream carrying pushes that could not complete interactively
const (
	PushQueueStream = "crmsync:pending_pushes"
	PushQueueGroup  = "crmsync-push-workers"
)
