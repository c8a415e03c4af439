package scenario

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"go.dedis.ch/locsim/model"
)

// Parse reads a scenario file and returns its ordered command sequence, or
// the first ParseError encountered; any violation aborts the whole parse.
func Parse(r io.Reader) ([]Command, error) {
	var cmds []Command
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		tokens := strings.Fields(trimmed)
		cmd, err := parseLine(line, tokens)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := checkPortOverlap(cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}

// checkPortOverlap checks every ProfileServer/ProximityServer command in
// the scenario against every other: no two servers' 20-port reserved
// blocks may intersect.
func checkPortOverlap(cmds []Command) error {
	type block struct {
		line   int
		lo, hi int // [lo, hi)
	}
	var blocks []block
	for _, c := range cmds {
		sk, ok := c.(*ServerKindCommand)
		if !ok {
			continue
		}
		lo := sk.BasePort
		hi := sk.BasePort + model.PortBlockSize*sk.Count
		for _, b := range blocks {
			if lo < b.hi && b.lo < hi {
				return &ParseError{Line: sk.Line(), Reason: "server port block overlaps block allocated at line " + strconv.Itoa(b.line)}
			}
		}
		blocks = append(blocks, block{line: sk.Line(), lo: lo, hi: hi})
	}
	return nil
}

type tokenReader struct {
	line   int
	tokens []string
	pos    int
}

func (t *tokenReader) remaining() int { return len(t.tokens) - t.pos }

func (t *tokenReader) next() (string, error) {
	if t.pos >= len(t.tokens) {
		return "", &ParseError{Line: t.line, Reason: "missing argument"}
	}
	v := t.tokens[t.pos]
	t.pos++
	return v, nil
}

func (t *tokenReader) requireEnd() error {
	if t.pos != len(t.tokens) {
		return &ParseError{Line: t.line, Token: t.tokens[t.pos], Reason: "unexpected trailing argument"}
	}
	return nil
}

func (t *tokenReader) nextInt() (int, error) {
	tok, err := t.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, &ParseError{Line: t.line, Token: tok, Reason: "not an integer"}
	}
	return n, nil
}

func (t *tokenReader) nextFloat() (float64, error) {
	tok, err := t.next()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, &ParseError{Line: t.line, Token: tok, Reason: "not a decimal number"}
	}
	return f, nil
}

func (t *tokenReader) nextString() (string, error) {
	return t.next()
}

func rangeErr(line int, tok, reason string) error {
	return &ParseError{Line: line, Token: tok, Reason: reason}
}

func parseLine(line int, tokens []string) (Command, error) {
	t := &tokenReader{line: line, tokens: tokens}
	keyword, err := t.next()
	if err != nil {
		return nil, err
	}
	switch keyword {
	case "ProfileServer":
		return parseServerKind(t, model.KindProfile)
	case "ProximityServer":
		return parseServerKind(t, model.KindProximity)
	case "StartServer":
		return parseServerRange(t, true)
	case "StopServer":
		return parseServerRange(t, false)
	case "Neighborhood":
		return parseNeighborhood(t, false)
	case "CancelNeighborhood":
		return parseNeighborhood(t, true)
	case "Neighbor":
		return parseNeighbor(t, false)
	case "CancelNeighbor":
		return parseNeighbor(t, true)
	case "Identity":
		return parseIdentity(t)
	case "CancelIdentity":
		return parseCancelIdentity(t)
	case "Activity":
		return parseActivity(t)
	case "DeleteActivity":
		return parseDeleteActivity(t)
	case "TestQuery":
		return parseTestQuery(t)
	case "TestQueryActivity":
		return parseTestQueryActivity(t)
	case "Delay":
		return parseDelay(t)
	case "TakeSnapshot":
		return parseSnapshot(t, false)
	case "LoadSnapshot":
		return parseSnapshot(t, true)
	case "DebugMode":
		return parseDebugMode(t)
	default:
		return nil, &ParseError{Line: line, Token: keyword, Reason: "unknown command"}
	}
}

func parseLocation(t *tokenReader) (lat, lon, radius float64, err error) {
	latTok, err := t.nextString()
	if err != nil {
		return 0, 0, 0, err
	}
	lat, err = strconv.ParseFloat(latTok, 64)
	if err != nil {
		return 0, 0, 0, &ParseError{Line: t.line, Token: latTok, Reason: "not a decimal number"}
	}
	if lat < -90 || lat > 90 {
		return 0, 0, 0, rangeErr(t.line, latTok, "lat must be in [-90,90]")
	}
	lonTok, err := t.nextString()
	if err != nil {
		return 0, 0, 0, err
	}
	lon, err = strconv.ParseFloat(lonTok, 64)
	if err != nil {
		return 0, 0, 0, &ParseError{Line: t.line, Token: lonTok, Reason: "not a decimal number"}
	}
	if lon <= -180 || lon > 180 {
		return 0, 0, 0, rangeErr(t.line, lonTok, "lon must be in (-180,180]")
	}
	radTok, err := t.nextString()
	if err != nil {
		return 0, 0, 0, err
	}
	radius, err = strconv.ParseFloat(radTok, 64)
	if err != nil {
		return 0, 0, 0, &ParseError{Line: t.line, Token: radTok, Reason: "not a decimal number"}
	}
	if radius < 0 || radius > 20000000 {
		return 0, 0, 0, rangeErr(t.line, radTok, "radius must be in [0,20000000]")
	}
	return lat, lon, radius, nil
}

func parseServerKind(t *tokenReader, kind model.ServerKind) (Command, error) {
	group, err := t.nextString()
	if err != nil {
		return nil, err
	}
	countTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(countTok)
	if err != nil {
		return nil, &ParseError{Line: t.line, Token: countTok, Reason: "not an integer"}
	}
	if count < 1 || count > 999 {
		return nil, rangeErr(t.line, countTok, "count must be in [1,999]")
	}
	portTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	basePort, err := strconv.Atoi(portTok)
	if err != nil {
		return nil, &ParseError{Line: t.line, Token: portTok, Reason: "not an integer"}
	}
	if basePort < 1 || basePort > 65535-model.PortBlockSize*count {
		return nil, rangeErr(t.line, portTok, "basePort out of range for count")
	}
	lat, lon, radius, err := parseLocation(t)
	if err != nil {
		return nil, err
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &ServerKindCommand{base: base{line: t.line}, Kind: kind, Group: group, Count: count, BasePort: basePort, Lat: lat, Lon: lon, Radius: radius}, nil
}

func parseIndexCountTriple(t *tokenReader, indexMax, countMax, sumMax int) (index, count int, err error) {
	idxTok, err := t.nextString()
	if err != nil {
		return 0, 0, err
	}
	index, err = strconv.Atoi(idxTok)
	if err != nil {
		return 0, 0, &ParseError{Line: t.line, Token: idxTok, Reason: "not an integer"}
	}
	if index < 1 || index > indexMax {
		return 0, 0, rangeErr(t.line, idxTok, "index out of range")
	}
	cntTok, err := t.nextString()
	if err != nil {
		return 0, 0, err
	}
	count, err = strconv.Atoi(cntTok)
	if err != nil {
		return 0, 0, &ParseError{Line: t.line, Token: cntTok, Reason: "not an integer"}
	}
	if count < 1 || count > countMax {
		return 0, 0, rangeErr(t.line, cntTok, "count out of range")
	}
	if index+count > sumMax {
		return 0, 0, rangeErr(t.line, cntTok, "index+count out of range")
	}
	return index, count, nil
}

func parseServerRange(t *tokenReader, start bool) (Command, error) {
	group, err := t.nextString()
	if err != nil {
		return nil, err
	}
	index, count, err := parseIndexCountTriple(t, 999, 999, 1000)
	if err != nil {
		return nil, err
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &ServerRangeCommand{base: base{line: t.line}, Start: start, Group: group, Index: index, Count: count}, nil
}

func parseNeighborhood(t *tokenReader, cancel bool) (Command, error) {
	if t.remaining() == 0 || t.remaining()%3 != 0 {
		return nil, &ParseError{Line: t.line, Reason: "expected a multiple of 3 arguments (group index count)..."}
	}
	var triples []GroupRange
	for t.remaining() > 0 {
		group, err := t.nextString()
		if err != nil {
			return nil, err
		}
		index, count, err := parseIndexCountTriple(t, 999, 999, 1000)
		if err != nil {
			return nil, err
		}
		triples = append(triples, GroupRange{Group: group, Index: index, Count: count})
	}
	return &NeighborhoodCommand{base: base{line: t.line}, Cancel: cancel, Triples: triples}, nil
}

func parseNeighbor(t *tokenReader, cancel bool) (Command, error) {
	source, err := t.nextString()
	if err != nil {
		return nil, err
	}
	if t.remaining() < 1 {
		return nil, &ParseError{Line: t.line, Reason: "expected at least one target"}
	}
	var targets []string
	for t.remaining() > 0 {
		tok, err := t.nextString()
		if err != nil {
			return nil, err
		}
		targets = append(targets, tok)
	}
	return &NeighborCommand{base: base{line: t.line}, Cancel: cancel, Source: source, Targets: targets}, nil
}

func parseIdentity(t *tokenReader) (Command, error) {
	name, err := t.nextString()
	if err != nil {
		return nil, err
	}
	createTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	createCount, err := strconv.Atoi(createTok)
	if err != nil {
		return nil, &ParseError{Line: t.line, Token: createTok, Reason: "not an integer"}
	}
	if createCount < 1 || createCount > 99999 {
		return nil, rangeErr(t.line, createTok, "createCount must be in [1,99999]")
	}
	idType, err := t.nextString()
	if err != nil {
		return nil, err
	}
	lat, lon, radius, err := parseLocation(t)
	if err != nil {
		return nil, err
	}
	profileMask, err := t.nextString()
	if err != nil {
		return nil, err
	}
	profileChance, err := parseChance(t)
	if err != nil {
		return nil, err
	}
	thumbMask, err := t.nextString()
	if err != nil {
		return nil, err
	}
	thumbChance, err := parseChance(t)
	if err != nil {
		return nil, err
	}
	group, err := t.nextString()
	if err != nil {
		return nil, err
	}
	index, count, err := parseIndexCountTriple(t, 999, 999, 1000)
	if err != nil {
		return nil, err
	}
	if createCount > model.MaxIdentities*count {
		return nil, rangeErr(t.line, createTok, "createCount exceeds capacity of selected servers")
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &IdentityCommand{
		base: base{line: t.line}, Name: name, CreateCount: createCount, Type: idType,
		Lat: lat, Lon: lon, Radius: radius,
		ProfileMask: profileMask, ProfileChance: profileChance,
		ThumbMask: thumbMask, ThumbChance: thumbChance,
		Group: group, Index: index, Count: count,
	}, nil
}

func parseChance(t *tokenReader) (int, error) {
	tok, err := t.nextString()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, &ParseError{Line: t.line, Token: tok, Reason: "not an integer"}
	}
	if v < 0 || v > 100 {
		return 0, rangeErr(t.line, tok, "chance must be in [0,100]")
	}
	return v, nil
}

func parseCancelIdentity(t *tokenReader) (Command, error) {
	name, err := t.nextString()
	if err != nil {
		return nil, err
	}
	index, count, err := parseIndexCountTriple(t, 99999, 99999, 100000)
	if err != nil {
		return nil, err
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &CancelIdentityCommand{base: base{line: t.line}, Name: name, Index: index, Count: count}, nil
}

func parseActivity(t *tokenReader) (Command, error) {
	name, err := t.nextString()
	if err != nil {
		return nil, err
	}
	createTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	createCount, err := strconv.Atoi(createTok)
	if err != nil {
		return nil, &ParseError{Line: t.line, Token: createTok, Reason: "not an integer"}
	}
	if createCount < 1 || createCount > 50000 {
		return nil, rangeErr(t.line, createTok, "createCount must be in [1,50000]")
	}
	// Activity puts precMin/precMax between lon and radius, so the location
	// is parsed from lat, lon and the radius token that follows them.
	if t.remaining() < 5 {
		return nil, &ParseError{Line: t.line, Reason: "missing argument"}
	}
	p := t.pos
	loc := &tokenReader{line: t.line, tokens: []string{t.tokens[p], t.tokens[p+1], t.tokens[p+4]}}
	lat, lon, radius, err := parseLocation(loc)
	if err != nil {
		return nil, err
	}
	t.pos += 2
	precMinTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	precMin, err := strconv.Atoi(precMinTok)
	if err != nil {
		return nil, &ParseError{Line: t.line, Token: precMinTok, Reason: "not an integer"}
	}
	precMaxTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	precMax, err := strconv.Atoi(precMaxTok)
	if err != nil {
		return nil, &ParseError{Line: t.line, Token: precMaxTok, Reason: "not an integer"}
	}
	if precMin < 0 || precMin > 1000 {
		return nil, rangeErr(t.line, precMinTok, "precMin must be in [0,1000]")
	}
	if precMax < 0 || precMax > 1000 {
		return nil, rangeErr(t.line, precMaxTok, "precMax must be in [0,1000]")
	}
	if precMin > precMax {
		return nil, rangeErr(t.line, precMaxTok, "precMin must be <= precMax")
	}
	t.pos++ // radius, parsed with lat/lon above
	startFrom, err := t.nextInt()
	if err != nil {
		return nil, err
	}
	startTo, err := t.nextInt()
	if err != nil {
		return nil, err
	}
	if startFrom < -86000 || startFrom > 86000 || startTo < -86000 || startTo > 86000 {
		return nil, rangeErr(t.line, "", "start offsets must be in [-86000,86000]")
	}
	if startFrom > startTo {
		return nil, rangeErr(t.line, "", "startFrom must be <= startTo")
	}
	lifeFrom, err := t.nextInt()
	if err != nil {
		return nil, err
	}
	lifeTo, err := t.nextInt()
	if err != nil {
		return nil, err
	}
	if lifeFrom < 1 || lifeFrom > 86400 || lifeTo < 1 || lifeTo > 86400 {
		return nil, rangeErr(t.line, "", "lifetimes must be in [1,86400]")
	}
	if lifeFrom > lifeTo {
		return nil, rangeErr(t.line, "", "lifeFrom must be <= lifeTo")
	}
	if startFrom+lifeFrom <= 0 {
		return nil, rangeErr(t.line, "", "start+life must be > 0")
	}
	if startTo+lifeTo > 86400 {
		return nil, rangeErr(t.line, "", "startTo+lifeTo must be <= 86400")
	}
	group, err := t.nextString()
	if err != nil {
		return nil, err
	}
	index, count, err := parseIndexCountTriple(t, 999, 999, 1000)
	if err != nil {
		return nil, err
	}
	if createCount > model.MaxActivities*count {
		return nil, rangeErr(t.line, createTok, "createCount exceeds capacity of selected servers")
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &ActivityCommand{
		base: base{line: t.line}, Name: name, CreateCount: createCount,
		Lat: lat, Lon: lon, Radius: radius,
		PrecMin: precMin, PrecMax: precMax,
		StartFrom: startFrom, StartTo: startTo,
		LifeFrom: lifeFrom, LifeTo: lifeTo,
		Group: group, Index: index, Count: count,
	}, nil
}

func parseDeleteActivity(t *tokenReader) (Command, error) {
	name, err := t.nextString()
	if err != nil {
		return nil, err
	}
	index, count, err := parseIndexCountTriple(t, 50000, 50000, 50001)
	if err != nil {
		return nil, err
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &DeleteActivityCommand{base: base{line: t.line}, Name: name, Index: index, Count: count}, nil
}

func parseTestQuery(t *tokenReader) (Command, error) {
	group, err := t.nextString()
	if err != nil {
		return nil, err
	}
	index, count, err := parseIndexCountTriple(t, 999, 999, 1000)
	if err != nil {
		return nil, err
	}
	nameTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	typeTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	imgTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	includeImages, err := strconv.ParseBool(imgTok)
	if err != nil {
		return nil, &ParseError{Line: t.line, Token: imgTok, Reason: "not a boolean"}
	}
	hasLoc, lat, lon, radius, err := parseOptionalLocation(t)
	if err != nil {
		return nil, err
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &TestQueryCommand{
		base: base{line: t.line}, Group: group, Index: index, Count: count,
		NameFilter: model.ParseStringFilter(nameTok), TypeFilter: model.ParseStringFilter(typeTok),
		IncludeImages: includeImages, HasLocation: hasLoc, Lat: lat, Lon: lon, Radius: radius,
	}, nil
}

// parseOptionalLocation consumes lat, lon, radius, where lat may be the
// sentinel NO_LOCATION, in which case lon must also be NO_LOCATION and
// radius is still read, keeping the token count fixed.
func parseOptionalLocation(t *tokenReader) (has bool, lat, lon, radius float64, err error) {
	latTok, err := t.nextString()
	if err != nil {
		return false, 0, 0, 0, err
	}
	if latTok == "NO_LOCATION" {
		lonTok, err := t.nextString()
		if err != nil {
			return false, 0, 0, 0, err
		}
		if lonTok != "NO_LOCATION" {
			return false, 0, 0, 0, rangeErr(t.line, lonTok, "expected NO_LOCATION")
		}
		radTok, err := t.nextString()
		if err != nil {
			return false, 0, 0, 0, err
		}
		radius, err = strconv.ParseFloat(radTok, 64)
		if err != nil {
			return false, 0, 0, 0, &ParseError{Line: t.line, Token: radTok, Reason: "not a decimal number"}
		}
		return false, 0, 0, radius, nil
	}
	lat, err = strconv.ParseFloat(latTok, 64)
	if err != nil {
		return false, 0, 0, 0, &ParseError{Line: t.line, Token: latTok, Reason: "not a decimal number"}
	}
	if lat < -90 || lat > 90 {
		return false, 0, 0, 0, rangeErr(t.line, latTok, "lat must be in [-90,90]")
	}
	lonTok, err := t.nextString()
	if err != nil {
		return false, 0, 0, 0, err
	}
	lon, err = strconv.ParseFloat(lonTok, 64)
	if err != nil {
		return false, 0, 0, 0, &ParseError{Line: t.line, Token: lonTok, Reason: "not a decimal number"}
	}
	if lon <= -180 || lon > 180 {
		return false, 0, 0, 0, rangeErr(t.line, lonTok, "lon must be in (-180,180]")
	}
	radTok, err := t.nextString()
	if err != nil {
		return false, 0, 0, 0, err
	}
	radius, err = strconv.ParseFloat(radTok, 64)
	if err != nil {
		return false, 0, 0, 0, &ParseError{Line: t.line, Token: radTok, Reason: "not a decimal number"}
	}
	if radius < 0 || radius > 20000000 {
		return false, 0, 0, 0, rangeErr(t.line, radTok, "radius must be in [0,20000000]")
	}
	return true, lat, lon, radius, nil
}

func parseOptionalTime(t *tokenReader) (has bool, v int64, err error) {
	tok, err := t.nextString()
	if err != nil {
		return false, 0, err
	}
	if tok == "ANY" {
		return false, 0, nil
	}
	v, err = strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return false, 0, &ParseError{Line: t.line, Token: tok, Reason: "not an integer or ANY"}
	}
	return true, v, nil
}

func parseTestQueryActivity(t *tokenReader) (Command, error) {
	group, err := t.nextString()
	if err != nil {
		return nil, err
	}
	index, count, err := parseIndexCountTriple(t, 999, 999, 1000)
	if err != nil {
		return nil, err
	}
	typeTok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	hasStart, startNotAfter, err := parseOptionalTime(t)
	if err != nil {
		return nil, err
	}
	hasExpiry, expirationNotBefore, err := parseOptionalTime(t)
	if err != nil {
		return nil, err
	}
	if hasStart && hasExpiry && startNotAfter >= expirationNotBefore {
		return nil, rangeErr(t.line, "", "startNotAfter must be < expirationNotBefore")
	}
	hasLoc, lat, lon, radius, err := parseOptionalLocation(t)
	if err != nil {
		return nil, err
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &TestQueryActivityCommand{
		base: base{line: t.line}, Group: group, Index: index, Count: count,
		TypeFilter:       model.ParseStringFilter(typeTok),
		HasStartNotAfter: hasStart, StartNotAfter: startNotAfter,
		HasExpirationNotBefore: hasExpiry, ExpirationNotBefore: expirationNotBefore,
		HasLocation: hasLoc, Lat: lat, Lon: lon, Radius: radius,
	}, nil
}

func parseDelay(t *tokenReader) (Command, error) {
	seconds, err := t.nextFloat()
	if err != nil {
		return nil, err
	}
	if seconds <= 0 {
		return nil, rangeErr(t.line, "", "seconds must be > 0")
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &DelayCommand{base: base{line: t.line}, Seconds: seconds}, nil
}

func parseSnapshot(t *tokenReader, load bool) (Command, error) {
	name, err := t.nextString()
	if err != nil {
		return nil, err
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &SnapshotCommand{base: base{line: t.line}, Load: load, Name: name}, nil
}

func parseDebugMode(t *tokenReader) (Command, error) {
	tok, err := t.nextString()
	if err != nil {
		return nil, err
	}
	var on bool
	switch tok {
	case "on":
		on = true
	case "off":
		on = false
	default:
		return nil, &ParseError{Line: t.line, Token: tok, Reason: "expected on or off"}
	}
	if err := t.requireEnd(); err != nil {
		return nil, err
	}
	return &DebugModeCommand{base: base{line: t.line}, On: on}, nil
}
