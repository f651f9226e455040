package guidance

import (
	"fmt"
	"strings"
)

// Below this many meters to the next maneuver the instruction says "soon"
// instead of an exact distance.
const shortlyMeters = 20

// Table maps maneuver descriptions to localized phrases. Keys are either a
// compound "type modifier" or a bare maneuver type; lookup tries the
// compound first. The table is plain data and can be replaced wholesale.
type Table map[string]string

// DefaultTable returns the built-in Korean phrase table.
func DefaultTable() Table {
	return Table{
		// basic directions
		"turn":       "회전",
		"turn right": "우회전",
		"turn left":  "좌회전",
		"depart":     "출발",
		"arrive":     "도착",
		"continue":   "직진",
		"straight":   "직진",
		"new name":   "직진",

		// detailed directions
		"turn slight right": "우측 방향",
		"turn slight left":  "좌측 방향",
		"turn sharp right":  "급우회전",
		"turn sharp left":   "급좌회전",
		"slight right":      "우측 방향",
		"slight left":       "좌측 방향",
		"sharp right":       "급우회전",
		"sharp left":        "급좌회전",
		"uturn":             "유턴",
		"turn uturn":        "유턴",
		"continue uturn":    "유턴",

		// roundabouts
		"roundabout":      "로터리 진입",
		"rotary":          "로터리 진입",
		"roundabout turn": "로터리에서 회전",
		"exit roundabout": "로터리 출구로 진출",
		"exit rotary":     "로터리 출구로 진출",

		// merges, ramps, forks
		"merge":              "차선 합류",
		"merge left":         "왼쪽 차선 합류",
		"merge right":        "오른쪽 차선 합류",
		"ramp":               "램프 진입",
		"on ramp":            "진입로 진입",
		"off ramp":           "출구로 진출",
		"fork":               "갈림길",
		"fork left":          "갈림길에서 좌측",
		"fork right":         "갈림길에서 우측",
		"fork slight left":   "갈림길에서 좌측",
		"fork slight right":  "갈림길에서 우측",
		"fork straight":      "갈림길에서 직진",
		"end of road left":   "길 끝에서 좌회전",
		"end of road right":  "길 끝에서 우회전",
		"exit":               "출구",
		"keep right":         "우측 유지",
		"keep left":          "좌측 유지",
	}
}

// Formatter renders maneuvers as localized voice instructions. It is a pure
// lookup over its table and is safe for concurrent use.
type Formatter struct {
	table Table
}

// NewFormatter builds a formatter over the given table. A nil table falls
// back to the default Korean one.
func NewFormatter(table Table) *Formatter {
	if table == nil {
		table = DefaultTable()
	}
	return &Formatter{table: table}
}

// Phrase returns the localized phrase for a maneuver. Lookup order:
// "type modifier" compound key, then bare type, then the straight-ahead
// default.
func (f *Formatter) Phrase(maneuverType, modifier string) string {
	key := strings.TrimSpace(maneuverType + " " + modifier)
	if p, ok := f.table[key]; ok {
		return p
	}
	if p, ok := f.table[maneuverType]; ok {
		return p
	}
	return "직진"
}

// FormatDistance renders meters as "850m" or "1.5km" from one kilometer up.
func FormatDistance(meters float64) string {
	if meters >= 1000 {
		return fmt.Sprintf("%.1fkm", meters/1000)
	}
	return fmt.Sprintf("%dm", int(meters))
}

// Instruction composes the guidance sentence for the transition described by
// maneuverType/modifier: distance to the maneuver, the localized phrase, and
// the remaining route distance. Arrive maneuvers drop the remaining-distance
// suffix.
func (f *Formatter) Instruction(maneuverType, modifier string, distanceMeters, remainingMeters float64) string {
	phrase := f.Phrase(maneuverType, modifier)

	var lead string
	if distanceMeters < shortlyMeters {
		lead = "곧"
	} else {
		lead = FormatDistance(distanceMeters) + " 앞에서"
	}

	if maneuverType == "arrive" {
		return fmt.Sprintf("%s %s입니다", lead, phrase)
	}

	msg := fmt.Sprintf("%s %s하세요", lead, phrase)
	if remainingMeters > 0 {
		msg += fmt.Sprintf(". 남은 거리 %s", FormatDistance(remainingMeters))
	}
	return msg
}
