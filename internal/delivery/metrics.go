package delivery

// Recorder receives scheduling metrics
type Recorder interface {
	SettingsCacheHit()
	SettingsCacheMiss()
	SettingsFallback(subscriptionType string)
	ScheduleGenerated(subscriptionType string, deliveries int)
}

// NopRecorder discards all metrics
type NopRecorder struct{}

func (NopRecorder) SettingsCacheHit()                        {}
func (NopRecorder) SettingsCacheMiss()                       {}
func (NopRecorder) SettingsFallback(subscriptionType string) {}
func (NopRecorder) ScheduleGenerated(string, int)            {}
