package featureflag

type Flag string

const (
	FlagDisableRaycast         Flag = "DISABLE_RAYCAST"
	FlagDisableRegionQuery     Flag = "DISABLE_REGION_QUERY"
	FlagDisableIndexValidation Flag = "DISABLE_INDEX_VALIDATION"
	FlagDisableModules         Flag = "DISABLE_MODULES"
	FlagDisablePlaneMerge      Flag = "DISABLE_PLANE_MERGE"
)
