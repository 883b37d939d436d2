// Package schedule turns declarative campaign schedules into armed
// triggers.
//
// Translate maps a schedule descriptor (immediate / once / recurring)
// to either an absolute one-shot instant or a 5-field cron expression;
// Scheduler owns the live trigger registry and dispatches the execution
// engine when a trigger fires.
package schedule
