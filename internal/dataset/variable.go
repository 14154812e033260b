package dataset

// Variable identifies a weather quantity in its canonical (NASA POWER) spelling.
type Variable string

const (
	VarTemperature   Variable = "T2M"         // air temperature at 2 m (°C)
	VarWindEast      Variable = "U10M"        // eastward wind at 10 m (m/s)
	VarWindNorth     Variable = "V10M"        // northward wind at 10 m (m/s)
	VarPressure      Variable = "PS"          // surface pressure (kPa)
	VarHumidity      Variable = "QV2M"        // specific humidity at 2 m (g/kg)
	VarWindSpeed     Variable = "WS10M"       // wind speed at 10 m (m/s)
	VarPrecipitation Variable = "PRECTOTCORR" // corrected precipitation (mm/day)
)

// VariableInfo describes a variable's unit and the physically plausible
// value range used by dataset validation.
type VariableInfo struct {
	Unit        string
	Description string
	Min         float64
	Max         float64
}

var catalog = map[Variable]VariableInfo{
	VarTemperature:   {Unit: "°C", Description: "Temperature at 2 Meters", Min: -90, Max: 60},
	VarWindEast:      {Unit: "m/s", Description: "Eastward Wind at 10 Meters", Min: -100, Max: 100},
	VarWindNorth:     {Unit: "m/s", Description: "Northward Wind at 10 Meters", Min: -100, Max: 100},
	VarPressure:      {Unit: "kPa", Description: "Surface Pressure", Min: 50, Max: 110},
	VarHumidity:      {Unit: "g/kg", Description: "Specific Humidity at 2 Meters", Min: 0, Max: 40},
	VarWindSpeed:     {Unit: "m/s", Description: "Wind Speed at 10 Meters", Min: 0, Max: 60},
	VarPrecipitation: {Unit: "mm/day", Description: "Precipitation Corrected", Min: 0, Max: 500},
}

// Known reports whether v is part of the variable catalog.
func Known(v Variable) bool {
	_, ok := catalog[v]
	return ok
}

// Info returns catalog metadata for v. The second return is false for
// variables outside the catalog.
func Info(v Variable) (VariableInfo, bool) {
	info, ok := catalog[v]
	return info, ok
}

// DefaultVariables returns the variable set requested when a query names none.
func DefaultVariables() []Variable {
	return []Variable{VarTemperature, VarWindEast, VarWindNorth, VarPressure, VarHumidity}
}

// ParseVariables converts raw variable names, keeping unknown names as-is so
// adapters can decide whether to drop or reject them.
func ParseVariables(names []string) []Variable {
	vars := make([]Variable, 0, len(names))
	for _, name := range names {
		vars = append(vars, Variable(name))
	}
	return vars
}
