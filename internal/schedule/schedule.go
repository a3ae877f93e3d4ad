package schedule

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"workshop-reminders/internal/models"

	"github.com/google/uuid"
)

// isoDate is the layout used for all service and due dates.
const isoDate = "2006-01-02"

// missingField is rendered in place of an absent odometer or service date.
const missingField = "—"

// Due describes a single due-event for one vehicle.
type Due struct {
	Key  string // dedup key, derived from the time-based due date
	Date string // ISO due date
	Km   *int   // informational distance threshold, nil when unknown
}

// DueSoon decides whether v should be reminded now. The time threshold is
// the sole trigger: a vehicle without a last service date is never due.
// The distance threshold only produces the informational Km field.
func DueSoon(v models.Vehicle, r models.Rules, today time.Time) (Due, bool) {
	if v.LastServiceDate == nil {
		return Due{}, false
	}
	last, err := time.ParseInLocation(isoDate, *v.LastServiceDate, time.UTC)
	if err != nil {
		return Due{}, false
	}

	remaining := r.TimeIntervalDays - daysBetween(last, today)
	if remaining > r.LeadDays {
		return Due{}, false
	}

	dueDate := last.AddDate(0, 0, r.TimeIntervalDays).Format(isoDate)
	due := Due{
		Key:  "date:" + dueDate,
		Date: dueDate,
	}
	if v.LastOdo != nil && *v.LastOdo > 0 {
		km := *v.LastOdo + r.DistanceIntervalKm
		due.Km = &km
	}
	return due, true
}

// daysBetween returns whole days from a to b at day granularity,
// ignoring time of day. Negative when b precedes a.
func daysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}

// DedupIndex builds the set of due-events already present in the queue.
// Every entry counts regardless of status: a sent or dismissed reminder
// still blocks regeneration for the same due-event.
func DedupIndex(queue []models.Reminder) map[string]struct{} {
	index := make(map[string]struct{}, len(queue))
	for _, r := range queue {
		index[r.DedupKey()] = struct{}{}
	}
	return index
}

// RenderMessage fills the rule template with vehicle fields. Output is
// plain text; an absent odometer or service date renders as an em-dash.
func RenderMessage(tmpl string, v models.Vehicle, r models.Rules) string {
	lastOdo := missingField
	if v.LastOdo != nil {
		lastOdo = strconv.Itoa(*v.LastOdo)
	}
	lastDate := missingField
	if v.LastServiceDate != nil {
		lastDate = *v.LastServiceDate
	}
	return strings.NewReplacer(
		"{plate}", v.Plate,
		"{lastOdo}", lastOdo,
		"{lastDate}", lastDate,
		"{discount}", r.DiscountText,
	).Replace(tmpl)
}

// Generate runs one generation pass: evaluates every vehicle against the
// rules, drops due-events already in the existing queue, and returns the
// new pending entries with rendered messages. Pure with respect to its
// inputs: today is the only clock, stamping CreatedAt as well. The caller
// persists existing ++ result. Running it twice with unchanged inputs
// yields nothing the second time.
func Generate(vehicles []models.Vehicle, r models.Rules, existing []models.Reminder, today time.Time) []models.Reminder {
	r = r.Normalize()
	index := DedupIndex(existing)

	var out []models.Reminder
	for _, v := range vehicles {
		due, ok := DueSoon(v, r, today)
		if !ok {
			continue
		}
		entry := models.Reminder{
			ID:        uuid.NewString(),
			Plate:     v.Plate,
			OwnerName: v.OwnerName,
			Phone:     v.Phone,
			DueKey:    due.Key,
			DueDate:   due.Date,
			DueKm:     due.Km,
			Message:   RenderMessage(r.Template, v, r),
			Status:    models.StatusPending,
			CreatedAt: today,
		}
		if _, dup := index[entry.DedupKey()]; dup {
			continue
		}
		index[entry.DedupKey()] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// SortQueue orders reminders ascending by due date, keeping insertion
// order among equal dates.
func SortQueue(queue []models.Reminder) {
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].DueDate < queue[j].DueDate
	})
}
