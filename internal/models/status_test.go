package models

import "testing"

func TestTerminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Error("PENDING must not be terminal")
	}
	for _, s := range []Status{StatusSucceeded, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusSucceeded, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusPending, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusSucceeded, StatusPending, false},
		{StatusFailed, StatusSucceeded, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestFromGatewayStatus(t *testing.T) {
	cases := []struct {
		raw   string
		want  Status
		known bool
	}{
		{"SUCCESS", StatusSucceeded, true},
		{"success", StatusSucceeded, true},
		{"COMPLETED", StatusSucceeded, true},
		{"Validé", StatusSucceeded, true},
		{"Approuvée", StatusSucceeded, true},
		{"FAILED", StatusFailed, true},
		{"Echec", StatusFailed, true},
		{"PENDING", StatusPending, true},
		{"EN_ATTENTE", StatusPending, true},
		{"en attente", StatusPending, true},
		{"CANCELLED", StatusCancelled, true},
		{"CANCELED", StatusCancelled, true},
		{"Annulée", StatusCancelled, true},
		{" SUCCESS ", StatusSucceeded, true},
		{"WEIRD_VALUE", StatusFailed, false},
		{"", StatusFailed, false},
	}
	for _, tc := range cases {
		got, known := FromGatewayStatus(tc.raw)
		if got != tc.want || known != tc.known {
			t.Errorf("FromGatewayStatus(%q) = (%s, %v), want (%s, %v)", tc.raw, got, known, tc.want, tc.known)
		}
	}
}
