package vibration

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testCatalog() Catalog {
	return Catalog{
		Units: []UnitDef{{ID: "U1"}, {ID: "U2"}},
		Equipments: []EquipmentDef{
			{ID: "E1"}, {ID: "E2"}, {ID: "E3"},
		},
		Parameters: []ParameterDef{
			{ID: "P1", Type: ParameterTypeVelocity, Order: 3},
			{ID: "P2", Type: ParameterTypeAcceleration, Order: 1},
			{ID: "P3", Type: ParameterTypeVelocity, Order: 2},
			{ID: "P4", Type: ParameterTypeAcceleration, Order: 4},
		},
	}
}

func equipmentIDs(list []EquipmentDef) []string {
	ids := make([]string, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.ID)
	}
	return ids
}

func parameterIDs(list []ParameterDef) []string {
	ids := make([]string, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestEffectiveEquipmentOrder(t *testing.T) {
	catalog := testCatalog()
	tests := []struct {
		name      string
		unit      Unit
		overrides PriorityOverrides
		want      []string
	}{
		{name: "empty overrides", unit: "U1", want: []string{"E1", "E2", "E3"}},
		{
			name:      "custom drops unranked",
			unit:      "U1",
			overrides: PriorityOverrides{{Key: "E3_U1", Rank: 1}, {Key: "E1_U1", Rank: 2}},
			want:      []string{"E3", "E1"},
		},
		{
			name: "other unit ignored",
			unit: "U1",
			overrides: PriorityOverrides{
				{Key: "E2_U2", Rank: 1},
				{Key: "E3_U1", Rank: 5},
				{Key: "E1_U1", Rank: 2},
			},
			want: []string{"E1", "E3"},
		},
		{
			name:      "no override for unit",
			unit:      "U2",
			overrides: PriorityOverrides{{Key: "E3_U1", Rank: 1}},
			want:      []string{"E1", "E2", "E3"},
		},
		{
			name:      "unknown keys dropped",
			unit:      "U1",
			overrides: PriorityOverrides{{Key: "E9_U1", Rank: 1}, {Key: "E2_U1", Rank: 2}},
			want:      []string{"E2"},
		},
		{
			name:      "ties keep insertion order",
			unit:      "U1",
			overrides: PriorityOverrides{{Key: "E2_U1", Rank: 1}, {Key: "E1_U1", Rank: 1}, {Key: "E3_U1", Rank: 0}},
			want:      []string{"E3", "E2", "E1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := equipmentIDs(EffectiveEquipmentOrder(tt.unit, tt.overrides, catalog))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEffectiveParameterOrder(t *testing.T) {
	catalog := testCatalog()
	custom := PriorityOverrides{{Key: "P4", Rank: 1}, {Key: "P1", Rank: 2}, {Key: "ghost", Rank: 3}}
	tests := []struct {
		name      string
		mode      ParameterMode
		overrides PriorityOverrides
		want      []string
	}{
		{name: "default by order field", mode: ParameterModeDefault, want: []string{"P2", "P3", "P1", "P4"}},
		{name: "velocity first keeps catalog order", mode: ParameterModeVelocityFirst, overrides: custom, want: []string{"P1", "P3", "P2", "P4"}},
		{name: "custom", mode: ParameterModeCustom, overrides: custom, want: []string{"P4", "P1"}},
		{name: "custom without overrides", mode: ParameterModeCustom, want: []string{"P2", "P3", "P1", "P4"}},
		{name: "unknown mode", mode: "sideways", overrides: custom, want: []string{"P2", "P3", "P1", "P4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parameterIDs(EffectiveParameterOrder(tt.mode, tt.overrides, catalog))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEffectiveParameterOrderDoesNotMutateCatalog(t *testing.T) {
	catalog := testCatalog()
	_ = EffectiveParameterOrder(ParameterModeDefault, nil, catalog)
	if diff := cmp.Diff([]string{"P1", "P2", "P3", "P4"}, parameterIDs(catalog.Parameters)); diff != "" {
		t.Fatalf("catalog reordered (-want +got):\n%s", diff)
	}
}

func TestDisplayEquipmentOrder(t *testing.T) {
	catalog := testCatalog()

	got := DisplayEquipmentOrder(nil, catalog)
	if len(got) != 6 || got[0].SnapshotKey() != "E1_U1" || got[3].SnapshotKey() != "E1_U2" {
		t.Fatalf("unexpected default display order: %+v", got)
	}

	overrides := PriorityOverrides{{Key: "E2_U2", Rank: 2}, {Key: "E1_U1", Rank: 1}, {Key: "E1", Rank: 0}}
	keys := []string{}
	for _, scoped := range DisplayEquipmentOrder(overrides, catalog) {
		keys = append(keys, scoped.SnapshotKey())
	}
	if diff := cmp.Diff([]string{"E1_U1", "E2_U2"}, keys); diff != "" {
		t.Fatalf("display order mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultPriorities(t *testing.T) {
	catalog := testCatalog()
	equipment := DefaultEquipmentPriorities(catalog)
	if len(equipment) != 6 {
		t.Fatalf("expected 6 equipment priorities, got %d", len(equipment))
	}
	if rank, ok := equipment.Rank("E1_U2"); !ok || rank != 4 {
		t.Fatalf("expected E1_U2 rank 4, got %d %v", rank, ok)
	}
	params := DefaultParameterPriorities(catalog)
	if rank, _ := params.Rank("P2"); rank != 1 {
		t.Fatalf("expected P2 rank 1, got %d", rank)
	}
	params = params.Set("P2", 9).Set("P9", 10)
	if rank, _ := params.Rank("P2"); rank != 9 || len(params) != 5 {
		t.Fatalf("unexpected overrides after Set: %+v", params)
	}
}
