package http

import (
	"encoding/json"
	"time"

	"github.com/example/experience-booking/internal/application"
	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/pricing"
	"github.com/example/experience-booking/internal/recurrence"
)

type availabilityDefaultsDTO struct {
	Capacity     int  `json:"capacity"`
	BufferBefore int  `json:"buffer_before"`
	BufferAfter  int  `json:"buffer_after"`
	ResourceLock bool `json:"resource_lock"`
}

func (d *availabilityDefaultsDTO) toDefaults() *recurrence.Defaults {
	if d == nil {
		return nil
	}
	return &recurrence.Defaults{
		Capacity:     d.Capacity,
		BufferBefore: d.BufferBefore,
		BufferAfter:  d.BufferAfter,
		ResourceLock: d.ResourceLock,
	}
}

type occurrenceDTO struct {
	RuleIndex    int    `json:"rule_index"`
	Start        string `json:"start"`
	End          string `json:"end"`
	LocalStart   string `json:"local_start"`
	Capacity     int    `json:"capacity"`
	BufferBefore int    `json:"buffer_before"`
	BufferAfter  int    `json:"buffer_after"`
	SlotID       string `json:"slot_id,omitempty"`
}

func toOccurrenceDTOs(occurrences []application.Occurrence) []occurrenceDTO {
	out := make([]occurrenceDTO, 0, len(occurrences))
	for _, occurrence := range occurrences {
		out = append(out, occurrenceDTO{
			RuleIndex:    occurrence.RuleIndex,
			Start:        formatUTC(occurrence.Start),
			End:          formatUTC(occurrence.End),
			LocalStart:   occurrence.LocalStart.Format(time.RFC3339),
			Capacity:     occurrence.Capacity,
			BufferBefore: occurrence.BufferBefore,
			BufferAfter:  occurrence.BufferAfter,
			SlotID:       occurrence.SlotID,
		})
	}
	return out
}

type typeAvailabilityDTO struct {
	Capacity  int `json:"capacity"`
	Reserved  int `json:"reserved"`
	Remaining int `json:"remaining"`
}

type slotDTO struct {
	ID              string                         `json:"id"`
	ExperienceID    string                         `json:"experience_id"`
	Start           string                         `json:"start"`
	End             string                         `json:"end"`
	LocalStart      string                         `json:"local_start,omitempty"`
	LocalEnd        string                         `json:"local_end,omitempty"`
	Status          string                         `json:"status"`
	CapacityTotal   int                            `json:"capacity_total"`
	CapacityPerType map[string]int                 `json:"capacity_per_type,omitempty"`
	BufferBefore    int                            `json:"buffer_before"`
	BufferAfter     int                            `json:"buffer_after"`
	Unlimited       *bool                          `json:"unlimited,omitempty"`
	Reserved        *int                           `json:"reserved,omitempty"`
	Remaining       *int                           `json:"remaining,omitempty"`
	PerType         map[string]typeAvailabilityDTO `json:"per_type,omitempty"`
}

func toSlotDTO(slot persistence.Slot) slotDTO {
	return slotDTO{
		ID:              slot.ID,
		ExperienceID:    slot.ExperienceID,
		Start:           formatUTC(slot.Start),
		End:             formatUTC(slot.End),
		Status:          string(slot.Status),
		CapacityTotal:   slot.CapacityTotal,
		CapacityPerType: slot.CapacityPerType,
		BufferBefore:    slot.BufferBefore,
		BufferAfter:     slot.BufferAfter,
	}
}

func toAvailableSlotDTO(slot application.SlotWithAvailability) slotDTO {
	dto := toSlotDTO(slot.Slot)
	dto.LocalStart = slot.LocalStart.Format(time.RFC3339)
	dto.LocalEnd = slot.LocalEnd.Format(time.RFC3339)
	unlimited := slot.Availability.Unlimited
	reserved := slot.Availability.Reserved
	remaining := slot.Availability.Remaining
	dto.Unlimited = &unlimited
	dto.Reserved = &reserved
	dto.Remaining = &remaining
	if len(slot.Availability.PerType) > 0 {
		dto.PerType = make(map[string]typeAvailabilityDTO, len(slot.Availability.PerType))
		for slug, availability := range slot.Availability.PerType {
			dto.PerType[slug] = typeAvailabilityDTO(availability)
		}
	}
	return dto
}

func toAvailableSlotDTOs(slots []application.SlotWithAvailability) []slotDTO {
	out := make([]slotDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, toAvailableSlotDTO(slot))
	}
	return out
}

type reservationDTO struct {
	ID           string         `json:"id"`
	SlotID       string         `json:"slot_id"`
	ExperienceID string         `json:"experience_id,omitempty"`
	Status       string         `json:"status"`
	Pax          int            `json:"pax"`
	PaxByType    map[string]int `json:"pax_by_type,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
}

func toReservationDTO(reservation persistence.Reservation) reservationDTO {
	dto := reservationDTO{
		ID:           reservation.ID,
		SlotID:       reservation.SlotID,
		ExperienceID: reservation.ExperienceID,
		Status:       string(reservation.Status),
		Pax:          reservation.Pax,
		PaxByType:    reservation.PaxByType,
	}
	if !reservation.CreatedAt.IsZero() {
		dto.CreatedAt = formatUTC(reservation.CreatedAt)
	}
	return dto
}

type lineItemDTO struct {
	Slug      string  `json:"slug"`
	Label     string  `json:"label"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

type adjustmentDTO struct {
	Label        string  `json:"label"`
	Amount       float64 `json:"amount"`
	RunningTotal float64 `json:"running_total"`
}

type breakdownDTO struct {
	BasePrice   float64         `json:"base_price"`
	Tickets     []lineItemDTO   `json:"tickets"`
	Addons      []lineItemDTO   `json:"addons"`
	Adjustments []adjustmentDTO `json:"adjustments"`
	Subtotal    float64         `json:"subtotal"`
	Total       float64         `json:"total"`
	Currency    string          `json:"currency"`
	TotalGuests int             `json:"total_guests"`
}

func toBreakdownDTO(breakdown pricing.Breakdown) breakdownDTO {
	dto := breakdownDTO{
		BasePrice:   breakdown.BasePrice,
		Tickets:     toLineItemDTOs(breakdown.Tickets),
		Addons:      toLineItemDTOs(breakdown.Addons),
		Adjustments: make([]adjustmentDTO, 0, len(breakdown.Adjustments)),
		Subtotal:    breakdown.Subtotal,
		Total:       breakdown.Total,
		Currency:    breakdown.Currency,
		TotalGuests: breakdown.TotalGuests,
	}
	for _, adjustment := range breakdown.Adjustments {
		dto.Adjustments = append(dto.Adjustments, adjustmentDTO(adjustment))
	}
	return dto
}

func toLineItemDTOs(items []pricing.LineItem) []lineItemDTO {
	out := make([]lineItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, lineItemDTO(item))
	}
	return out
}

type experienceDTO struct {
	ID           string                  `json:"id"`
	Title        string                  `json:"title"`
	BasePrice    float64                 `json:"base_price"`
	Currency     string                  `json:"currency"`
	Tickets      any                     `json:"tickets"`
	Addons       any                     `json:"addons"`
	PricingRules any                     `json:"pricing_rules"`
	Recurrence   any                     `json:"recurrence"`
	Availability availabilityDefaultsDTO `json:"availability"`
	UpdatedAt    string                  `json:"updated_at,omitempty"`
}

func toExperienceDTO(experience persistence.Experience) experienceDTO {
	dto := experienceDTO{
		ID:           experience.ID,
		Title:        experience.Title,
		BasePrice:    experience.BasePrice,
		Currency:     experience.Currency,
		Tickets:      rawOrNull(experience.Tickets),
		Addons:       rawOrNull(experience.Addons),
		PricingRules: rawOrNull(experience.PricingRules),
		Recurrence:   rawOrNull(experience.Recurrence),
		Availability: availabilityDefaultsDTO(experience.Availability),
	}
	if !experience.UpdatedAt.IsZero() {
		dto.UpdatedAt = formatUTC(experience.UpdatedAt)
	}
	return dto
}

func formatUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func rawOrNull(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}
