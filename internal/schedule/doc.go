// Package schedule translates declarative automation-job schedules into cron
// expressions and feeds them to the periodic task manager.
//
// Four schedule shapes are supported: a fixed daily time, an every-N-hours
// interval, specific weekdays at a time, and a raw cron passthrough. The
// converter also enforces a floor on trigger frequency so a tenant cannot
// schedule a job tighter than the configured minimum interval.
package schedule
