package gorm

// AllModels lists every table the engine owns, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Pipeline{},
		&PipelineStage{},
		&Contact{},
		&Booking{},
		&Member{},
		&FieldMapEntry{},
		&SyncRun{},
		&Vendor{},
	}
}
