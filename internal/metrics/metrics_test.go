package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
)

func TestCollector_ObserveChange(t *testing.T) {
	c := NewCollector("clinic")
	c.ObserveChange(appointment.ChangeStatus, "scheduled", "checked_in")
	c.ObserveChange(appointment.ChangeStatus, "scheduled", "checked_in")

	got := testutil.ToFloat64(c.ChangesTotal.WithLabelValues("status_change", "scheduled", "checked_in"))
	if got != 2 {
		t.Errorf("changes_total = %v, want 2", got)
	}
}

func TestCollector_ObserveRejection(t *testing.T) {
	c := NewCollector("clinic")
	c.ObserveRejection("revert", appointment.KindReversionBlockedByRecord)

	got := testutil.ToFloat64(c.RejectionsTotal.WithLabelValues("revert", "reversion_blocked_by_downstream_record"))
	if got != 1 {
		t.Errorf("rejections_total = %v, want 1", got)
	}
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("clinic")
	b := NewCollector("clinic")
	a.ObserveRejection("revert", appointment.KindMissingReason)

	if testutil.ToFloat64(b.RejectionsTotal.WithLabelValues("revert", "missing_reason")) != 0 {
		t.Error("collectors share state")
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("clinic")
	c.ObserveChange(appointment.ChangeDoctorAssignment, "", "")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clinic_lifecycle_changes_total") {
		t.Error("lifecycle counter missing from exposition")
	}
}
