package vibration

// ParameterType classifies a measured channel.
type ParameterType string

const (
	ParameterTypeVelocity     ParameterType = "velocity"
	ParameterTypeAcceleration ParameterType = "acceleration"
)

// Valid returns true when the type is supported.
func (t ParameterType) Valid() bool {
	switch t {
	case ParameterTypeVelocity, ParameterTypeAcceleration:
		return true
	default:
		return false
	}
}

// MaxValue is the accepted ceiling for readings of this type.
func (t ParameterType) MaxValue() float64 {
	if t == ParameterTypeVelocity {
		return 20
	}
	return 2
}

// ParameterCategory tells whether a channel sits on the connected or free side.
type ParameterCategory string

const (
	CategoryConnected ParameterCategory = "connected"
	CategoryFree      ParameterCategory = "free"
)

// Unit identifies a production line.
type Unit string

const (
	UnitDRI1 Unit = "DRI1"
	UnitDRI2 Unit = "DRI2"
)

// UnitDef describes a production line.
type UnitDef struct {
	ID    Unit   `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Code  string `json:"code" yaml:"code"`
	Color string `json:"color" yaml:"color"`
}

// EquipmentDef describes a monitored asset.
type EquipmentDef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Code  string `json:"code"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// ParameterDef describes a measured channel.
type ParameterDef struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Code     string            `json:"code"`
	Type     ParameterType     `json:"type"`
	Category ParameterCategory `json:"category"`
	Order    int               `json:"order"`
}

// MaxValue returns the type-derived ceiling.
func (p ParameterDef) MaxValue() float64 {
	return p.Type.MaxValue()
}

// Catalog is the static, ordered list of units, equipment and parameters.
// Slices are in declaration order; callers must treat them as read-only.
type Catalog struct {
	Units      []UnitDef      `json:"units"`
	Equipments []EquipmentDef `json:"equipments"`
	Parameters []ParameterDef `json:"parameters"`
}

// Unit returns the unit definition for id.
func (c Catalog) Unit(id Unit) (UnitDef, bool) {
	for _, unit := range c.Units {
		if unit.ID == id {
			return unit, true
		}
	}
	return UnitDef{}, false
}

// Equipment returns the equipment definition for id.
func (c Catalog) Equipment(id string) (EquipmentDef, bool) {
	for _, equipment := range c.Equipments {
		if equipment.ID == id {
			return equipment, true
		}
	}
	return EquipmentDef{}, false
}

// Parameter returns the parameter definition for id.
func (c Catalog) Parameter(id string) (ParameterDef, bool) {
	for _, parameter := range c.Parameters {
		if parameter.ID == id {
			return parameter, true
		}
	}
	return ParameterDef{}, false
}

// HasUnit reports whether id is a known unit.
func (c Catalog) HasUnit(id Unit) bool {
	_, ok := c.Unit(id)
	return ok
}

// DefaultCatalog returns the plant's equipment and parameter catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Units: []UnitDef{
			{ID: UnitDRI1, Name: "واحد احیا مستقیم 1", Code: "DRI 1", Color: "#3b82f6"},
			{ID: UnitDRI2, Name: "واحد احیا مستقیم 2", Code: "DRI 2", Color: "#ef4444"},
		},
		Equipments: []EquipmentDef{
			{ID: "GB-cp48A", Name: "گیربکس کمپرسور 48A", Code: "GB-cp 48A", Icon: "fas fa-cog", Color: "#8b5cf6"},
			{ID: "CP-cp48A", Name: "کمپرسور 48A", Code: "CP-cp 48A", Icon: "fas fa-compress", Color: "#06b6d4"},
			{ID: "GB-cp48B", Name: "گیربکس کمپرسور 48B", Code: "GB-cp 48B", Icon: "fas fa-cog", Color: "#8b5cf6"},
			{ID: "CP-cp48B", Name: "کمپرسور 48B", Code: "CP-cp 48B", Icon: "fas fa-compress", Color: "#06b6d4"},
			{ID: "GB-cp51", Name: "گیربکس کمپرسور 51", Code: "GB-cp 51", Icon: "fas fa-cog", Color: "#8b5cf6"},
			{ID: "CP-cp51", Name: "کمپرسور 51", Code: "CP-cp 51", Icon: "fas fa-compress", Color: "#06b6d4"},
			{ID: "GB-cp71", Name: "گیربکس کمپرسور 71", Code: "GB-cp 71", Icon: "fas fa-cog", Color: "#8b5cf6"},
			{ID: "CP-cp71", Name: "کمپرسور 71", Code: "CP-cp 71", Icon: "fas fa-compress", Color: "#06b6d4"},
			{ID: "CP-cpSGC", Name: "کمپرسور سیل گس", Code: "CP-cp SGC", Icon: "fas fa-compress", Color: "#06b6d4"},
			{ID: "FN-fnESF", Name: "فن استک", Code: "FN-fn ESF", Icon: "fas fa-fan", Color: "#10b981"},
			{ID: "FN-fnAUX", Name: "فن اگزیلاری", Code: "FN-fn AUX", Icon: "fas fa-fan", Color: "#10b981"},
			{ID: "FN-fnMAB", Name: "فن هوای اصلی", Code: "FN-fn MAB", Icon: "fas fa-fan", Color: "#10b981"},
		},
		Parameters: []ParameterDef{
			{ID: "V1", Name: "سرعت عمودی متصل", Code: "V1", Type: ParameterTypeVelocity, Category: CategoryConnected, Order: 1},
			{ID: "GV1", Name: "شتاب عمودی متصل", Code: "GV1", Type: ParameterTypeAcceleration, Category: CategoryConnected, Order: 2},
			{ID: "H1", Name: "سرعت افقی متصل", Code: "H1", Type: ParameterTypeVelocity, Category: CategoryConnected, Order: 3},
			{ID: "GH1", Name: "شتاب افقی متصل", Code: "GH1", Type: ParameterTypeAcceleration, Category: CategoryConnected, Order: 4},
			{ID: "A1", Name: "سرعت محوری متصل", Code: "A1", Type: ParameterTypeVelocity, Category: CategoryConnected, Order: 5},
			{ID: "GA1", Name: "شتاب محوری متصل", Code: "GA1", Type: ParameterTypeAcceleration, Category: CategoryConnected, Order: 6},
			{ID: "V2", Name: "سرعت عمودی آزاد", Code: "V2", Type: ParameterTypeVelocity, Category: CategoryFree, Order: 7},
			{ID: "GV2", Name: "شتاب عمودی آزاد", Code: "GV2", Type: ParameterTypeAcceleration, Category: CategoryFree, Order: 8},
			{ID: "H2", Name: "سرعت افقی آزاد", Code: "H2", Type: ParameterTypeVelocity, Category: CategoryFree, Order: 9},
			{ID: "GH2", Name: "شتاب افقی آزاد", Code: "GH2", Type: ParameterTypeAcceleration, Category: CategoryFree, Order: 10},
			{ID: "A2", Name: "سرعت محوری آزاد", Code: "A2", Type: ParameterTypeVelocity, Category: CategoryFree, Order: 11},
			{ID: "GA2", Name: "شتاب محوری آزاد", Code: "GA2", Type: ParameterTypeAcceleration, Category: CategoryFree, Order: 12},
		},
	}
}
