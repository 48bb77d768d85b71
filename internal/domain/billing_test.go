package domain

import (
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestResolve_FreePlanSnapsSeatCountToMax(t *testing.T) {
	plan := &SubscriptionPlan{PlanCode: "FREE", IsFree: true, MaxSeats: 3}
	got := Resolve(plan, nil, nil, time.Now())
	if got.SeatCount != 3 {
		t.Errorf("SeatCount = %d, want plan.MaxSeats (3)", got.SeatCount)
	}
}

func TestResolve_PaidPlanUsesSubscriptionSeatCount(t *testing.T) {
	plan := &SubscriptionPlan{PlanCode: "TEAM", IsFree: false, MaxSeats: 50}
	sub := &OrganizationSubscription{PlanCode: "TEAM", SeatCount: 12}
	got := Resolve(plan, sub, nil, time.Now())
	if got.SeatCount != 12 {
		t.Errorf("SeatCount = %d, want the subscription's seat_count (12)", got.SeatCount)
	}
}

func TestResolve_PaidPlanWithNoSubscriptionFallsBackToPlanMax(t *testing.T) {
	plan := &SubscriptionPlan{PlanCode: "TEAM", IsFree: false, MaxSeats: 50}
	got := Resolve(plan, nil, nil, time.Now())
	if got.SeatCount != 50 {
		t.Errorf("SeatCount = %d, want plan.MaxSeats (50)", got.SeatCount)
	}
}

func TestResolve_NonExpiredOverrideAppliesFieldWise(t *testing.T) {
	plan := &SubscriptionPlan{
		PlanCode:            "TEAM",
		MaxSeats:            50,
		MaxCustomMCPServers: intPtr(5),
		LogRetentionDays:    intPtr(30),
	}
	sub := &OrganizationSubscription{PlanCode: "TEAM", SeatCount: 12}
	override := &OrganizationEntitlementOverride{
		SeatCount: intPtr(20),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	got := Resolve(plan, sub, override, time.Now())
	if got.SeatCount != 20 {
		t.Errorf("SeatCount = %d, want the override's seat_count (20)", got.SeatCount)
	}
	if got.MaxCustomMCPServers == nil || *got.MaxCustomMCPServers != 5 {
		t.Errorf("MaxCustomMCPServers = %v, want plan's value (5) since the override didn't set it", got.MaxCustomMCPServers)
	}
	if got.LogRetentionDays == nil || *got.LogRetentionDays != 30 {
		t.Errorf("LogRetentionDays = %v, want plan's value (30) since the override didn't set it", got.LogRetentionDays)
	}
}

func TestResolve_ExpiredOverrideIsIgnored(t *testing.T) {
	plan := &SubscriptionPlan{PlanCode: "TEAM", MaxSeats: 50}
	sub := &OrganizationSubscription{PlanCode: "TEAM", SeatCount: 12}
	override := &OrganizationEntitlementOverride{
		SeatCount: intPtr(999),
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	got := Resolve(plan, sub, override, time.Now())
	if got.SeatCount != 12 {
		t.Errorf("SeatCount = %d, want the subscription's seat_count (12) since the override has expired", got.SeatCount)
	}
}

func TestResolve_NilMaxCustomMCPServersMeansUnlimited(t *testing.T) {
	plan := &SubscriptionPlan{PlanCode: "ENTERPRISE", MaxSeats: 1000}
	got := Resolve(plan, nil, nil, time.Now())
	if got.MaxCustomMCPServers != nil {
		t.Errorf("MaxCustomMCPServers = %v, want nil (unlimited)", got.MaxCustomMCPServers)
	}
}
