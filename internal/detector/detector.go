// Package detector compares internal appointments with external events and
// reports the pairs that disagree. Detection is a pure function of its
// inputs: unchanged inputs always yield the same conflict ids and
// fingerprints, so earlier resolutions can be recognized.
package detector

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/google/uuid"
)

var (
	conflictNamespace    = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:calsync:conflict"))
	fingerprintNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:calsync:fingerprint"))
)

// ConflictID derives the id of the conflict of kind between an appointment
// and a remote event.
func ConflictID(appointmentID, integrationID, remoteEventID string, kind models.ConflictKind) string {
	name := strings.Join([]string{appointmentID, integrationID, remoteEventID, string(kind)}, "\x00")
	return uuid.NewSHA1(conflictNamespace, []byte(name)).String()
}

// Fingerprint hashes the fields of both records that detection looks at.
// A resolved conflict whose fingerprint changed refers to records that
// were edited since the decision.
func Fingerprint(a models.Appointment, e models.ExternalEvent) string {
	aStart, aEnd := a.Interval()
	name := strings.Join([]string{
		a.ID, a.PatientName, stamp(aStart), stamp(aEnd),
		e.Key(), e.Title, stamp(e.Start), stamp(e.End),
	}, "\x00")
	return uuid.NewSHA1(fingerprintNamespace, []byte(name)).String()
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Overlaps reports whether the half-open intervals intersect. Touching
// endpoints do not.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ProbableDuplicate reports whether the event title and the patient name
// contain one another, ignoring case. Blank values never match.
func ProbableDuplicate(patientName, title string) bool {
	p := strings.ToLower(strings.TrimSpace(patientName))
	t := strings.ToLower(strings.TrimSpace(title))
	if p == "" || t == "" {
		return false
	}
	return strings.Contains(t, p) || strings.Contains(p, t)
}

// Detect checks every appointment against every event. A pair can yield
// both an overlap and a duplicate conflict. Results follow input order.
func Detect(appointments []models.Appointment, events []models.ExternalEvent) []models.SyncConflict {
	var out []models.SyncConflict
	for _, a := range appointments {
		aStart, aEnd := a.Interval()
		for _, e := range events {
			var kinds []models.ConflictKind
			if Overlaps(aStart, aEnd, e.Start, e.End) {
				kinds = append(kinds, models.ConflictTimeOverlap)
			}
			if ProbableDuplicate(a.PatientName, e.Title) {
				kinds = append(kinds, models.ConflictProbableDuplicate)
			}
			if len(kinds) == 0 {
				continue
			}

			fp := Fingerprint(a, e)
			for _, kind := range kinds {
				out = append(out, models.SyncConflict{
					ID:            ConflictID(a.ID, e.IntegrationID, e.RemoteID, kind),
					IntegrationID: e.IntegrationID,
					RemoteEventID: e.RemoteID,
					AppointmentID: a.ID,
					Kind:          kind,
					Fingerprint:   fp,
					Details:       models.ConflictDetails{Appointment: a, Event: e},
				})
			}
		}
	}
	return out
}
