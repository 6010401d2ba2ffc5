package domain

import (
	"testing"
	"time"
)

func TestConfirm_LastSupplierAdvancesOrder(t *testing.T) {
	o := twoSupplierOrder()

	if err := o.Confirm(Supplier("sup-a"), "", testNow); err != nil {
		t.Fatalf("Confirm(sup-a) = %v", err)
	}
	if o.Status != OrderPending {
		t.Fatalf("order advanced to %s before all suppliers confirmed", o.Status)
	}

	if err := o.Confirm(Supplier("sup-b"), "", testNow.Add(time.Minute)); err != nil {
		t.Fatalf("Confirm(sup-b) = %v", err)
	}
	if o.Status != OrderConfirmed {
		t.Fatalf("Status = %s, want confirmed after last supplier", o.Status)
	}

	last := o.StatusHistory[len(o.StatusHistory)-1]
	if last.Status != OrderConfirmed || last.ChangedBy != "supplier:sup-b" {
		t.Errorf("unexpected history entry: %+v", last)
	}
}

func TestConfirm_ForeignSupplierForbidden(t *testing.T) {
	o := twoSupplierOrder()

	err := o.Confirm(Supplier("sup-z"), "", testNow)
	if ErrorCode(err) != EFORBIDDEN {
		t.Fatalf("Confirm(sup-z) = %v, want EFORBIDDEN", err)
	}
	if o.Fulfillments["sup-a"].Stage != OrderPending {
		t.Error("rejected confirm mutated fulfillment state")
	}
}

func TestConfirm_AdminConfirmsAll(t *testing.T) {
	o := twoSupplierOrder()

	if err := o.Confirm(Admin(), "", testNow); err != nil {
		t.Fatalf("Confirm(admin) = %v", err)
	}
	if o.Status != OrderConfirmed {
		t.Fatalf("Status = %s, want confirmed", o.Status)
	}
}

func TestConfirm_DoubleConfirmRejected(t *testing.T) {
	o := twoSupplierOrder()
	if err := o.Confirm(Supplier("sup-a"), "", testNow); err != nil {
		t.Fatal(err)
	}

	err := o.Confirm(Supplier("sup-a"), "", testNow)
	if ErrorCode(err) != ETRANSITION {
		t.Fatalf("second Confirm = %v, want ETRANSITION", err)
	}
}

func TestMarkShipped_RequiresTrackingForHomeDelivery(t *testing.T) {
	o := twoSupplierOrder()
	if err := o.Confirm(Admin(), "", testNow); err != nil {
		t.Fatal(err)
	}

	err := o.MarkShipped(Supplier("sup-a"), "", "", testNow)
	if !IsValidationError(err) {
		t.Fatalf("MarkShipped without tracking = %v, want ValidationError", err)
	}

	if err := o.MarkShipped(Supplier("sup-a"), "", "AR1234-XYZ", testNow); err != nil {
		t.Fatalf("MarkShipped = %v", err)
	}
	if o.Status != OrderConfirmed {
		t.Fatalf("order shipped before all suppliers: %s", o.Status)
	}

	if err := o.MarkShipped(Supplier("sup-b"), "", "BR9999-ABC", testNow); err != nil {
		t.Fatalf("MarkShipped(sup-b) = %v", err)
	}
	if o.Status != OrderShipped {
		t.Fatalf("Status = %s, want shipped", o.Status)
	}
	if o.Fulfillments["sup-a"].TrackingNumber != "AR1234-XYZ" {
		t.Errorf("sup-a tracking = %q", o.Fulfillments["sup-a"].TrackingNumber)
	}
}

func TestMarkShipped_PickupNeedsNoTracking(t *testing.T) {
	o := twoSupplierOrder()
	pickup := testNow.AddDate(0, 0, 5)
	o.ShippingMethod = ShippingPickup
	o.ShippingAddress = nil
	o.PickupDate = &pickup

	if err := o.Confirm(Admin(), "", testNow); err != nil {
		t.Fatal(err)
	}
	if err := o.MarkShipped(Admin(), "", "", testNow); err != nil {
		t.Fatalf("MarkShipped(pickup) = %v", err)
	}
}

func TestMarkDelivered_RequiresApprovedPayment(t *testing.T) {
	o := twoSupplierOrder()
	if err := o.Confirm(Admin(), "", testNow); err != nil {
		t.Fatal(err)
	}
	if err := o.MarkShipped(Admin(), "", "AR1234-XYZ", testNow); err != nil {
		t.Fatal(err)
	}

	// Still unpaid: delivery must be rejected.
	err := o.MarkDelivered(Admin(), testNow)
	if ErrorCode(err) != ETRANSITION {
		t.Fatalf("MarkDelivered unpaid = %v, want ETRANSITION", err)
	}
	if o.Status != OrderShipped {
		t.Fatalf("rejected delivery mutated status to %s", o.Status)
	}

	o.PaymentStatus = PaymentApproved
	if err := o.MarkDelivered(System(), testNow); err != nil {
		t.Fatalf("MarkDelivered = %v", err)
	}
	if o.Status != OrderDelivered {
		t.Fatalf("Status = %s, want delivered", o.Status)
	}
}

func TestMarkDelivered_CustomerForbidden(t *testing.T) {
	o := twoSupplierOrder()
	o.Status = OrderShipped
	o.PaymentStatus = PaymentApproved

	if err := o.MarkDelivered(Customer("cust-1"), testNow); ErrorCode(err) != EFORBIDDEN {
		t.Fatalf("MarkDelivered(customer) = %v, want EFORBIDDEN", err)
	}
}

func TestCancel_CustomerOnlyWhilePending(t *testing.T) {
	o := twoSupplierOrder()

	if err := o.Cancel(Customer("cust-1"), "changed my mind", testNow); err != nil {
		t.Fatalf("Cancel = %v", err)
	}
	if o.Status != OrderCancelled {
		t.Fatalf("Status = %s, want cancelled", o.Status)
	}
	last := o.StatusHistory[len(o.StatusHistory)-1]
	if last.Note != "changed my mind" {
		t.Errorf("history note = %q", last.Note)
	}
}

func TestCancel_CustomerRejectedWhenShipped(t *testing.T) {
	o := twoSupplierOrder()
	o.Status = OrderShipped
	before := len(o.StatusHistory)

	err := o.Cancel(Customer("cust-1"), "", testNow)
	if ErrorCode(err) != ETRANSITION {
		t.Fatalf("Cancel shipped = %v, want ETRANSITION", err)
	}
	if o.Status != OrderShipped || len(o.StatusHistory) != before {
		t.Error("rejected cancel mutated the order")
	}
}

func TestCancel_OtherCustomerForbidden(t *testing.T) {
	o := twoSupplierOrder()

	if err := o.Cancel(Customer("cust-2"), "", testNow); ErrorCode(err) != EFORBIDDEN {
		t.Fatalf("Cancel by stranger = %v, want EFORBIDDEN", err)
	}
}

func TestCancel_SupplierAllowedWhileConfirmed(t *testing.T) {
	o := twoSupplierOrder()
	if err := o.Confirm(Admin(), "", testNow); err != nil {
		t.Fatal(err)
	}

	if err := o.Cancel(Supplier("sup-a"), "out of stock", testNow); err != nil {
		t.Fatalf("Cancel(supplier) = %v", err)
	}
	if o.Status != OrderCancelled {
		t.Fatalf("Status = %s, want cancelled", o.Status)
	}
}

func TestCancel_TerminalStatesStayTerminal(t *testing.T) {
	o := twoSupplierOrder()
	o.Status = OrderDelivered

	if err := o.Cancel(Admin(), "", testNow); ErrorCode(err) != ETRANSITION {
		t.Fatalf("Cancel delivered = %v, want ETRANSITION", err)
	}

	o.Status = OrderCancelled
	if err := o.Cancel(Admin(), "", testNow); ErrorCode(err) != ETRANSITION {
		t.Fatalf("Cancel cancelled = %v, want ETRANSITION", err)
	}
}

func TestCancel_InvalidatesUnsettledIntent(t *testing.T) {
	o := twoSupplierOrder()
	o.Payment.IntentID = "pi_live"

	if err := o.Cancel(Customer("cust-1"), "", testNow); err != nil {
		t.Fatalf("Cancel = %v", err)
	}
	if o.Payment.IntentID != "" {
		t.Errorf("IntentID = %q, want cleared on cancel", o.Payment.IntentID)
	}
	if !o.Payment.IntentInvalidated("pi_live") {
		t.Fatal("cancelled order's intent was not invalidated")
	}

	// A late approval on that intent is discarded, not settled.
	ev := GatewayEvent{
		ExternalReference:     o.ID,
		ExternalTransactionID: "txn_late",
		IntentID:              "pi_live",
		Status:                "approved",
	}
	if got := o.ReconcilePayment(ev, testNow.Add(time.Hour)); got != OutcomeStaleIntent {
		t.Fatalf("ReconcilePayment after cancel = %v, want OutcomeStaleIntent", got)
	}
	if o.PaymentStatus != PaymentPending {
		t.Errorf("PaymentStatus = %s, want pending", o.PaymentStatus)
	}
}

func TestCancel_ApprovedIntentStaysActive(t *testing.T) {
	o := twoSupplierOrder()
	o.Status = OrderConfirmed
	o.PaymentStatus = PaymentApproved
	o.Payment.IntentID = "pi_live"

	if err := o.Cancel(Admin(), "", testNow); err != nil {
		t.Fatalf("Cancel = %v", err)
	}
	if o.Payment.IntentID != "pi_live" {
		t.Errorf("IntentID = %q, refund events need the approved intent", o.Payment.IntentID)
	}

	refund := GatewayEvent{
		ExternalReference:     o.ID,
		ExternalTransactionID: "txn_refund",
		IntentID:              "pi_live",
		Status:                "refunded",
	}
	if got := o.ReconcilePayment(refund, testNow.Add(time.Hour)); got != OutcomeApplied {
		t.Fatalf("refund after cancel = %v, want OutcomeApplied", got)
	}
	if o.PaymentStatus != PaymentRefunded {
		t.Errorf("PaymentStatus = %s, want refunded", o.PaymentStatus)
	}
}

func TestUpdateTracking_StatusUnchanged(t *testing.T) {
	o := twoSupplierOrder()
	if err := o.Confirm(Admin(), "", testNow); err != nil {
		t.Fatal(err)
	}

	if err := o.UpdateTracking(Supplier("sup-a"), "", "AR1234-XYZ", testNow); err != nil {
		t.Fatalf("UpdateTracking = %v", err)
	}
	if o.Status != OrderConfirmed {
		t.Fatalf("UpdateTracking changed status to %s", o.Status)
	}
	if o.TrackingNumber != "AR1234-XYZ" {
		t.Errorf("TrackingNumber = %q", o.TrackingNumber)
	}
}

func TestUpdateTracking_BadFormatRejected(t *testing.T) {
	o := twoSupplierOrder()
	o.Status = OrderConfirmed

	for _, bad := range []string{"ab", "has space"} {
		if err := o.UpdateTracking(Admin(), "sup-a", bad, testNow); !IsValidationError(err) {
			t.Errorf("UpdateTracking(%q) = %v, want ValidationError", bad, err)
		}
	}
}

func TestUpdateTracking_RejectedWhilePending(t *testing.T) {
	o := twoSupplierOrder()

	if err := o.UpdateTracking(Admin(), "sup-a", "AR1234-XYZ", testNow); ErrorCode(err) != ETRANSITION {
		t.Fatalf("UpdateTracking pending = %v, want ETRANSITION", err)
	}
}

// Property check from the transition table: no sequence of accepted
// transitions reaches delivered while payment is not approved.
func TestNeverDeliveredUnpaid(t *testing.T) {
	statuses := []PaymentStatus{
		PaymentPending, PaymentInProcess, PaymentRejected, PaymentRefunded, PaymentFailed,
	}
	for _, ps := range statuses {
		o := twoSupplierOrder()
		o.PaymentStatus = ps
		_ = o.Confirm(Admin(), "", testNow)
		_ = o.MarkShipped(Admin(), "", "AR1234-XYZ", testNow)
		_ = o.MarkDelivered(Admin(), testNow)
		_ = o.MarkDelivered(System(), testNow)
		if o.Status == OrderDelivered {
			t.Errorf("order reached delivered with payment status %s", ps)
		}
	}
}
