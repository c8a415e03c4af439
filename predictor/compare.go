package predictor

import (
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/wire"
)

func profileToWire(r ProfileResult) wire.ProfileResultWire {
	p := r.Identity.Primary
	if !r.IsHosted {
		p = r.Identity.Propagated
	}
	return wire.ProfileResultWire{
		Profile: wire.ProfileWire{
			Version:       p.Version,
			Name:          p.Name,
			Type:          p.Type,
			Lat:           p.Location.Lat,
			Lon:           p.Location.Lon,
			Image:         p.Image,
			ImageHash:     p.ImageHash[:],
			Thumbnail:     p.Thumbnail,
			ThumbnailHash: p.ThumbnailHash[:],
			ExtraData:     p.ExtraData,
		},
		IsHosted:               r.IsHosted,
		IsOnline:               r.IsOnline,
		HostingServerNetworkID: r.HostingServerNetworkID[:],
	}
}

func activityToWire(r ActivityResult) wire.ActivityResultWire {
	info := r.Activity.Primary
	if !r.IsPrimary {
		info = r.Activity.Propagated
	}
	return wire.ActivityResultWire{
		Activity: wire.ActivityInfoWire{
			Version:             info.Version,
			Type:                info.Type,
			ID:                  r.Activity.Key.ID,
			OwnerIdentityID:     info.OwnerIdentityID[:],
			OwnerPublicKey:      info.OwnerPublicKey,
			OwnerProfileContact: info.OwnerProfileContact,
			Lat:                 info.Location.Lat,
			Lon:                 info.Location.Lon,
			Precision:           int32(info.Precision),
			StartTime:           info.StartTime,
			ExpirationTime:      info.ExpirationTime,
			ExtraData:           info.ExtraData,
			Signature:           info.Signature,
		},
		IsPrimary:     r.IsPrimary,
		PrimaryServer: string(r.PrimaryServer),
	}
}

// multiset builds a byte-encoding -> count map: comparison removes each
// element drawn by the real result set, and any miss fails the test.
func multiset(encoded [][]byte) map[string]int {
	m := make(map[string]int, len(encoded))
	for _, b := range encoded {
		m[string(b)]++
	}
	return m
}

// CompareProfileResults checks the result-set rules for a profile search.
func CompareProfileResults(server model.ServerName, expected []ProfileResult, real []wire.ProfileResultWire, maxTotal int) error {
	expEnc := make([][]byte, len(expected))
	for i, r := range expected {
		p := profileToWire(r)
		b, err := wire.Encode(&p)
		if err != nil {
			return err
		}
		expEnc[i] = b
	}
	realEnc := make([][]byte, len(real))
	for i, r := range real {
		b, err := wire.Encode(&r)
		if err != nil {
			return err
		}
		realEnc[i] = b
	}
	return compareResultSet(server, expEnc, realEnc, maxTotal)
}

// CompareActivityResults checks the result-set rules for an activity search.
func CompareActivityResults(server model.ServerName, expected []ActivityResult, real []wire.ActivityResultWire, maxTotal int) error {
	expEnc := make([][]byte, len(expected))
	for i, r := range expected {
		a := activityToWire(r)
		b, err := wire.Encode(&a)
		if err != nil {
			return err
		}
		expEnc[i] = b
	}
	realEnc := make([][]byte, len(real))
	for i, r := range real {
		b, err := wire.Encode(&r)
		if err != nil {
			return err
		}
		realEnc[i] = b
	}
	return compareResultSet(server, expEnc, realEnc, maxTotal)
}

func compareResultSet(server model.ServerName, expected, real [][]byte, maxTotal int) error {
	if len(expected) <= maxTotal {
		if len(real) != len(expected) {
			return &MismatchError{Server: string(server), Reason: "result count mismatch"}
		}
	} else if len(real) != maxTotal {
		return &MismatchError{Server: string(server), Reason: "result count does not equal maxTotal for an oversized result set"}
	}
	pool := multiset(expected)
	for _, b := range real {
		key := string(b)
		if pool[key] == 0 {
			return &MismatchError{Server: string(server), Reason: "real result not present in expected set"}
		}
		pool[key]--
	}
	return nil
}

// CompareCoveredServers checks the covered-servers rules: when every
// result could have come from the target alone, a covered set of just the
// target is accepted; otherwise real must be a permutation of expected.
func CompareCoveredServers(server model.ServerName, expected []model.NetworkID, real [][]byte, maxTotal, localCount int) error {
	if maxTotal <= localCount {
		if len(real) == 1 {
			target := expected[0]
			if string(real[0]) == string(target[:]) {
				return nil
			}
		}
	}
	if len(real) != len(expected) {
		return &MismatchError{Server: string(server), Reason: "covered-servers count mismatch"}
	}
	used := make([]bool, len(expected))
	for _, b := range real {
		matched := false
		for i, e := range expected {
			if used[i] {
				continue
			}
			if string(b) == string(e[:]) {
				used[i] = true
				matched = true
				break
			}
		}
		if !matched {
			return &MismatchError{Server: string(server), Reason: "covered-servers entry not present in expected set"}
		}
	}
	return nil
}
