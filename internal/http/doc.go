// Package http exposes the booking engine over JSON.
//
// The router exposes the following endpoints:
//   - GET /experiences/{id}, PUT /experiences/{id}: read and save an
//     experience's configuration. Saving invalidates the catalog cache.
//   - POST /experiences/{id}/recurrence/preview: virtual occurrences of the
//     stored or supplied recurrence. Body: {"recurrence","availability",
//     "month_cap","include_existing"}.
//   - POST /experiences/{id}/recurrence/generate: materializes slots. Body
//     adds "replace_existing". Rate limited.
//   - POST /experiences/{id}/slots/ensure: returns the slot id for a virtual
//     occurrence, creating it if needed. Body: {"start","end"}. Rate limited.
//   - POST /experiences/{id}/pricing/breakdown: prices tickets and addons.
//     Body: {"slot_id","slot_start","tickets","addons"}.
//   - GET /availability?experience_id=&start=&end=: active slots starting in
//     the inclusive local date range with remaining capacity.
//   - GET /slots/{id}: one slot with its availability.
//   - PATCH /slots/{id}/time, PATCH /slots/{id}/capacity: move a slot or
//     change its capacity. Rate limited.
//   - POST /slots/{id}/cancel: retires a slot. Rate limited.
//   - POST /slots/{id}/reservations, DELETE /reservations/{id}: hold and
//     release seats. Rate limited.
//
// Errors are reported as {"error_code","message","errors"} with status 422
// for invalid input, 404, 409, 429, 503 and 500 otherwise.
package http
