// Package retention prunes old request logs by age and by record count,
// either on demand or on a cron schedule.
package retention
