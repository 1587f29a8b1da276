// Package scheduler runs the bot's housekeeping jobs on cron schedules.
//
// Schedules use 5-field cron expressions or descriptors such as "@daily" and
// "@every 5m", evaluated in the configured location. A run that is still in
// progress when its next tick fires is skipped rather than stacked. Each run
// gets its own timeout and a recovered panic counts as a failed run.
//
// Jobs may be added before Start; they are registered with the cron runner
// when it starts.
package scheduler
