package sevas

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/shapefile"
)

// RestrictionRecord is one row of the SEVAS restriction layer: a truck
// restriction (StVO sign, optional value, optional time window and
// supplementary signs) targeting a single OSM way, possibly only a
// stretch of it.
type RestrictionRecord struct {
	SegmentID     int64
	RestrictionID int64
	Name          string
	OSMID         int64
	OSMVersion    string
	Direction     Direction
	Type          RestrictionType
	Value         string
	SingleDays    string
	GroupedDays   GroupedDays
	Time1From     string
	Time1To       string
	Time2From     string
	Time2To       string
	Municipality  string
	District      string
	Region        string
	Signs         map[SignCode]bool
	Geom          *geom.LineString
}

// NewRestrictionRecord builds a record from one shapefile feature.
func NewRestrictionRecord(f *shapefile.Feature) (*RestrictionRecord, error) {
	segmentID, err := parseID(f.Attr("segment_id"))
	if err != nil {
		return nil, eris.Wrap(err, "sevas: parse segment_id")
	}
	restrictionID, err := parseID(f.Attr("restrkn_id"))
	if err != nil {
		return nil, eris.Wrapf(err, "sevas: segment %d: parse restrkn_id", segmentID)
	}
	osmID, err := parseID(f.Attr("osm_id"))
	if err != nil {
		return nil, eris.Wrapf(err, "sevas: segment %d: parse osm_id", segmentID)
	}

	dir := Direction(f.Attr("fahrtri"))
	switch dir {
	case DirBoth, DirForward, DirBackward:
	default:
		return nil, eris.Errorf("sevas: segment %d: invalid fahrtri %q", segmentID, dir)
	}

	typ := RestrictionType(f.Attr("typ"))
	if _, ok := keyFromType[typ]; !ok {
		return nil, eris.Errorf("sevas: segment %d: unknown restriction type %q", segmentID, typ)
	}

	grouped := GroupedDays(f.Attr("tage_grppe"))
	if grouped == "" {
		grouped = GroupedNone
	}
	singleDays := f.Attr("tage_einzl")
	if singleDays == "" {
		singleDays = noSingleDays
	}

	signs := make(map[SignCode]bool, len(signCodes))
	for _, code := range signCodes {
		signs[code] = parseFlag(f.Attr(string(code)))
	}

	rec := &RestrictionRecord{
		SegmentID:     segmentID,
		RestrictionID: restrictionID,
		Name:          f.Attr("name"),
		OSMID:         osmID,
		OSMVersion:    f.Attr("osm_vers"),
		Direction:     dir,
		Type:          typ,
		Value:         f.Attr("wert"),
		SingleDays:    singleDays,
		GroupedDays:   grouped,
		Time1From:     f.Attr("zeit1_von"),
		Time1To:       f.Attr("zeit1_bis"),
		Time2From:     f.Attr("zeit2_von"),
		Time2To:       f.Attr("zeit2_bis"),
		Municipality:  f.Attr("gemeinde"),
		District:      f.Attr("kreis"),
		Region:        f.Attr("regbezirk"),
		Signs:         signs,
	}
	if ls, ok := f.Geom.(*geom.LineString); ok {
		rec.Geom = ls
	}
	return rec, nil
}

// ActiveSigns returns the supplementary signs set on the record, in
// stable column order.
func (r *RestrictionRecord) ActiveSigns() []SignCode {
	var active []SignCode
	for _, code := range signCodes {
		if r.Signs[code] {
			active = append(active, code)
		}
	}
	return active
}

// Signature encodes the restriction type plus all 23 sign flags into a
// fixed-length string used to recognize common combinations.
func (r *RestrictionRecord) Signature() string {
	var b strings.Builder
	b.WriteString(string(r.Type))
	for _, code := range signCodes {
		if r.Signs[code] {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// HasTimeCase reports whether the restriction is limited to certain
// days or times of day.
func (r *RestrictionRecord) HasTimeCase() bool {
	return r.Time1To != "" ||
		r.SingleDays != noSingleDays ||
		(r.GroupedDays != GroupedNone && r.GroupedDays != GroupedDaily)
}

func (r *RestrictionRecord) exemptors() []SignCode {
	var out []SignCode
	for _, code := range r.ActiveSigns() {
		if exemptorSigns[code] {
			out = append(out, code)
		}
	}
	return out
}

func (r *RestrictionRecord) specifiers() []SignCode {
	var out []SignCode
	for _, code := range r.ActiveSigns() {
		if specifierSigns[code] {
			out = append(out, code)
		}
	}
	return out
}

func (r *RestrictionRecord) specials() []SignCode {
	var out []SignCode
	for _, code := range r.ActiveSigns() {
		if specialSigns[code] {
			out = append(out, code)
		}
	}
	return out
}

// TrafficSign returns the value of the traffic_sign tag documenting the
// exact sign combination, e.g. "DE:253,1026-35,1053-33".
func (r *RestrictionRecord) TrafficSign() string {
	parts := []string{string(r.Type)}
	for _, code := range r.ActiveSigns() {
		parts = append(parts, strings.ReplaceAll(strings.TrimPrefix(string(code), "vz_"), "_", "-"))
	}
	return "DE:" + strings.Join(parts, ",")
}

// Tags derives the OSM tags expressing the restriction. Every returned
// set includes a traffic_sign tag.
func (r *RestrictionRecord) Tags() (map[string]string, error) {
	tags, err := r.deriveTags()
	if err != nil {
		return nil, err
	}
	tags["traffic_sign"] = r.TrafficSign()
	return tags, nil
}

func (r *RestrictionRecord) deriveTags() (map[string]string, error) {
	if specialSignatures[r.Signature()] {
		return r.specialSignatureTags()
	}

	nExempt := len(r.exemptors())
	nSpec := len(r.specifiers())
	nSpecial := len(r.specials())

	switch {
	case nExempt > 0 && nSpec > 0:
		if nSpecial == 0 {
			exempt, err := r.exemptorTags()
			if err != nil {
				return nil, err
			}
			spec, err := r.specifierTags()
			if err != nil {
				return nil, err
			}
			for k, v := range spec {
				exempt[k] = v
			}
			return exempt, nil
		}
		zap.L().Warn("sevas: restriction combines exemption, specification and special sign",
			zap.Int64("segment_id", r.SegmentID))

	case nExempt > 0 && nSpecial > 0:
		zap.L().Warn("sevas: restriction combines exemption and special sign, falling back",
			zap.Int64("segment_id", r.SegmentID),
			zap.String("signature", r.Signature()))

	case nExempt > 0:
		tags, err := r.basicTag()
		if err != nil {
			return nil, err
		}
		exempt, err := r.exemptorTags()
		if err != nil {
			return nil, err
		}
		for k, v := range exempt {
			tags[k] = v
		}
		return tags, nil

	case nSpec > 0:
		if nSpecial == 0 {
			return r.specifierTags()
		}
		zap.L().Warn("sevas: restriction combines specification and special sign",
			zap.Int64("segment_id", r.SegmentID))
	}

	return r.basicTag()
}

// specialSignatureTags handles the most common sign combinations that
// plain exemptor/specifier tagging cannot express.
func (r *RestrictionRecord) specialSignatureTags() (map[string]string, error) {
	dir := r.Direction.suffix()

	switch sig := r.Signature(); sig {
	case sigHGVNoDestOnly, sigHGVNoDeliveryOnly:
		val := "destination"
		if sig == sigHGVNoDeliveryOnly {
			val = "delivery"
		}
		if r.HasTimeCase() {
			times, err := r.timeConditional()
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"hgv:conditional": fmt.Sprintf("no @ %s;yes @ %s", times, val),
			}, nil
		}
		return map[string]string{"hgv" + dir: val}, nil

	case sigHGVNoDestOnly75, sigHGVNoDeliveryOnly75:
		val := "destination"
		if sig == sigHGVNoDeliveryOnly75 {
			val = "delivery"
		}
		if r.HasTimeCase() {
			times, err := r.timeConditional()
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"maxweight:hgv:conditional": fmt.Sprintf("7.5 @ %s;none @ %s", times, val),
			}, nil
		}
		return map[string]string{
			"maxweight" + dir:                  "7.5",
			"maxweight" + dir + ":conditional": "none @ " + val,
		}, nil

	case sigHGVNo75, sigHGVNo12:
		val := "7.5"
		if sig == sigHGVNo12 {
			val = "12"
		}
		if r.HasTimeCase() {
			times, err := r.timeConditional()
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"maxweight:hgv" + dir + ":conditional": fmt.Sprintf("%s @ %s", val, times),
			}, nil
		}
		return map[string]string{"maxweight:hgv" + dir: val}, nil
	}

	return map[string]string{}, nil
}

// exemptorTags derives tags for exempting signs. Without a time case
// the exemptions group into one :conditional value; with a time case
// each mode gets its own permissive key because the conditional slot is
// taken by the time window.
func (r *RestrictionRecord) exemptorTags() (map[string]string, error) {
	key := keyFromType[r.Type]
	permissive := permissiveValues[r.Type]

	var modes []string
	for _, sign := range r.exemptors() {
		modes = append(modes, trafficModes[sign]...)
	}

	tags := make(map[string]string)
	if r.HasTimeCase() {
		for _, mode := range modes {
			// hgv:bus would be nonsense, the exemptor is just bus=yes
			modeKey := key + ":" + mode
			if r.Type == RestrHGVNo {
				modeKey = mode
			}
			tags[modeKey] = permissive
		}
		return tags, nil
	}

	// keyable vehicle modes on an hgv ban become their own access keys,
	// the rest group under the conditional
	var rules []string
	for _, mode := range modes {
		if !nonKeyable[mode] && r.Type == RestrHGVNo {
			tags[mode] = permissive
		} else {
			rules = append(rules, mode)
		}
	}
	if len(rules) > 0 {
		parts := make([]string, len(rules))
		for i, rule := range rules {
			parts[i] = fmt.Sprintf("%s @ %s", permissive, rule)
		}
		tags[key+":conditional"] = strings.Join(parts, ";")
	}
	return tags, nil
}

// specifierTags derives tags for signs that narrow the restriction to
// certain modes of traffic.
func (r *RestrictionRecord) specifierTags() (map[string]string, error) {
	key := keyFromType[r.Type]
	dir := r.Direction.suffix()

	value := r.Value
	if value == "" {
		value = "no"
	}
	hasTime := r.HasTimeCase()
	if hasTime {
		times, err := r.timeConditional()
		if err != nil {
			return nil, err
		}
		value = fmt.Sprintf("%s @ %s", value, times)
	}

	var modes []string
	for _, sign := range r.specifiers() {
		modes = append(modes, trafficModes[sign]...)
	}

	tags := make(map[string]string)
	for _, mode := range modes {
		// avoid hgv:hgv style keys
		modeKey := key + ":" + mode + dir
		if r.Type == RestrHGVNo {
			modeKey = mode + dir
		}
		if hasTime {
			modeKey += ":conditional"
		}
		tags[modeKey] = value
	}
	return tags, nil
}

// basicTag derives the tag for a restriction without supplementary
// signs, or for sign combinations too rare to handle individually.
func (r *RestrictionRecord) basicTag() (map[string]string, error) {
	if len(r.ActiveSigns()) > 0 {
		zap.L().Warn("sevas: fallback tagging for restriction",
			zap.Int64("segment_id", r.SegmentID),
			zap.String("signature", r.Signature()))
	}

	key := keyFromType[r.Type]
	value := "no"

	if dimensionalTypes[r.Type] {
		if r.Value == "" {
			return nil, eris.Errorf("sevas: segment %d: restriction type %s requires a value",
				r.SegmentID, r.Type)
		}
		value = strings.ReplaceAll(r.Value, ",", ".")
	}

	key += r.Direction.suffix()

	conditional, err := r.timeConditional()
	if err != nil {
		return nil, err
	}
	if conditional != "" {
		key += ":conditional"
		value = fmt.Sprintf("%s @ %s", value, conditional)
	}

	return map[string]string{key: value}, nil
}

// timeConditional renders the day/time component of the restriction,
// e.g. "(Mo-Fr) 07:00-12:00,17:00-23:00" or "Mo, Tu" or "06:00-22:00".
// Returns "" when the restriction applies at all times.
func (r *RestrictionRecord) timeConditional() (string, error) {
	hasSingleDays := r.SingleDays != noSingleDays
	hasGroupedDays := r.GroupedDays != GroupedNone
	hasTime := r.Time1From != ""

	if !hasSingleDays && !hasGroupedDays && !hasTime {
		return "", nil
	}

	var days string
	if hasSingleDays {
		if hasGroupedDays {
			return "", eris.Errorf("sevas: segment %d: has both single and grouped days", r.SegmentID)
		}
		if r.SingleDays != invalidSingleDays {
			var named []string
			for i, c := range r.SingleDays {
				if c == '1' && i < len(daysOfWeek) {
					named = append(named, daysOfWeek[i])
				}
			}
			days = strings.Join(named, ", ")
		}
	} else if hasGroupedDays {
		switch r.GroupedDays {
		case GroupedDaily:
			// every day needs no day component
		case GroupedWeekdays:
			days = "(Mo-Fr)"
		case GroupedSundaysHolidays:
			days = "(Su,PH)"
		}
	}

	if !hasTime {
		return days, nil
	}

	if (r.Time1From != "" && r.Time1To == "") || (r.Time2From != "" && r.Time2To == "") {
		return "", eris.Errorf("sevas: segment %d: start time without end time", r.SegmentID)
	}

	times := r.Time1From + "-" + r.Time1To
	if r.Time2From != "" {
		times += "," + r.Time2From + "-" + r.Time2To
	}

	if days == "" {
		return times, nil
	}
	return days + " " + times, nil
}

// Restrictions is the restriction layer keyed by OSM way ID.
type Restrictions struct {
	wayTable[*RestrictionRecord]
}

// LoadRestrictions reads the restriction layer shapefile.
func LoadRestrictions(path string) (*Restrictions, error) {
	feats, err := shapefile.Read(path)
	if err != nil {
		return nil, err
	}

	t := &Restrictions{wayTable: newWayTable[*RestrictionRecord]()}
	for i := range feats {
		rec, err := NewRestrictionRecord(&feats[i])
		if err != nil {
			return nil, err
		}
		t.add(rec.OSMID, rec)
	}
	zap.L().Info("sevas: loaded restrictions",
		zap.Int("records", t.Len()),
		zap.Int("ways", len(t.m)))
	return t, nil
}

// LayerName implements the reporting interface.
func (t *Restrictions) LayerName() string { return string(LayerRestrictions) }
