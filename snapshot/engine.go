// Package snapshot implements taking and loading a full simulation state
// snapshot: JSON state files plus copied instance directories,
// with neighbor sets preserved as names and re-resolved post-load.
package snapshot

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/cryptoid"
	"go.dedis.ch/locsim/locserver"
	"go.dedis.ch/locsim/log"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/simctx"
	"go.dedis.ch/locsim/supervisor"
)

// dir returns the on-disk directory for the named snapshot, under
// ctx.Paths.SnapshotsDir.
func dir(ctx *simctx.Context, name string) string {
	return filepath.Join(ctx.Paths.SnapshotsDir, name)
}

// Take implements `TakeSnapshot`: stop every running server,
// serialise the world model to JSON, and copy each server's instance
// directory (logs/tmp excluded) into the snapshot's bin/ subtree. No
// attempt is made to quiesce in-flight neighbor notifications before
// stopping, so a snapshot can record a partially propagated neighbour set.
func Take(ctx *simctx.Context, registry *locserver.Registry, supervisors map[model.ServerName]*supervisor.Supervisor, name string) error {
	servers := ctx.World.AllServers()

	running := map[model.ServerName]bool{}
	for _, s := range servers {
		sup, ok := supervisors[s.Name]
		if !ok {
			continue
		}
		running[s.Name] = sup.IsRunning()
		if running[s.Name] {
			if err := sup.Stop(context.Background()); err != nil {
				return xerrors.Errorf("snapshot %s: stopping %s: %v", name, s.Name, err)
			}
		}
	}

	snapDir := dir(ctx, name)
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return xerrors.Errorf("snapshot %s: creating directory: %v", name, err)
	}

	images := map[string][]byte{} // hex(sha256) -> bytes, deduplicated across all profiles

	var profileServers, proximityServers []serverJSON
	for _, s := range servers {
		sj := serverJSON{
			Name:        string(s.Name),
			Lat:         s.Location.Lat,
			Lon:         s.Location.Lon,
			BasePort:    s.BasePort,
			InstanceDir: s.InstanceDir,
			PublicKey:   hex.EncodeToString(s.Keys.Public),
			PrivateKey:  hex.EncodeToString(s.Keys.Private),
			Initialized: s.Initialized(),
			Running:     running[s.Name],
			Neighbors:   stringNames(registry.Neighbors(s.Name)),
		}
		if id, ok := s.NetworkID(); ok {
			sj.NetworkID = hex.EncodeToString(id[:])
			sj.HasNetworkID = true
		}
		sj.Group = ctx.World.GroupOfServer(s.Name)

		switch s.Kind {
		case model.KindProfile:
			s.Profile.Lock()
			sj.AvailableSlots = s.Profile.AvailableSlots
			for _, idName := range s.Profile.Identities {
				sj.Identities = append(sj.Identities, string(idName))
			}
			s.Profile.Unlock()
			profileServers = append(profileServers, sj)
		case model.KindProximity:
			s.Proximity.Lock()
			sj.AvailableSlots = s.Proximity.AvailableSlots
			s.Proximity.Unlock()
			proximityServers = append(proximityServers, sj)
		}

		if err := copyInstanceDir(s.InstanceDir, filepath.Join(snapDir, "bin", string(s.Name))); err != nil {
			return xerrors.Errorf("snapshot %s: copying instance dir for %s: %v", name, s.Name, err)
		}
	}

	var identities []identityJSON
	ctx.World.ForEachIdentity(func(group string, id *model.Identity) {
		identities = append(identities, identityJSON{
			Name:               string(id.Name),
			PublicKey:          hex.EncodeToString(id.Keys.Public),
			PrivateKey:         hex.EncodeToString(id.Keys.Private),
			Host:               string(id.Host),
			Group:              group,
			Primary:            toProfileJSON(id.Primary, images),
			Propagated:         toProfileJSON(id.Propagated, images),
			ProfileInitialized: id.ProfileInitialized,
			HostingActive:      id.HostingActive,
		})
	})

	var activities []activityJSON
	ctx.World.ForEachActivity(func(group string, a *model.Activity) {
		activities = append(activities, activityJSON{
			Type:          a.Key.Type,
			ID:            a.Key.ID,
			Owner:         string(a.Owner),
			Group:         group,
			PrimaryServer: string(a.PrimaryServer),
			HostingActive: a.HostingActive,
			Primary:       toActivityInfoJSON(a.Primary),
			Propagated:    toActivityInfoJSON(a.Propagated),
		})
	})

	if err := writeJSON(filepath.Join(snapDir, "ProfileServers.json"), profileServers); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(snapDir, "ProximityServers.json"), proximityServers); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(snapDir, "Identities.json"), identities); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(snapDir, "Activities.json"), activities); err != nil {
		return err
	}
	imagesOut := make(map[string]string, len(images))
	for h, data := range images {
		imagesOut[h] = hex.EncodeToString(data)
	}
	if err := writeJSON(filepath.Join(snapDir, "Images.json"), imagesOut); err != nil {
		return err
	}

	log.Lvl2("snapshot ", name, ": took with ", len(servers), " servers, ", len(identities), " identities, ", len(activities), " activities")
	return nil
}

// stringNames converts a slice of model.ServerName to plain strings for
// JSON storage.
func stringNames(names []model.ServerName) []string {
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

func toProfileJSON(p model.Profile, images map[string][]byte) profileJSON {
	pj := profileJSON{
		Version:   p.Version,
		Name:      p.Name,
		Type:      p.Type,
		Lat:       p.Location.Lat,
		Lon:       p.Location.Lon,
		ExtraData: hex.EncodeToString(p.ExtraData),
	}
	if p.HasImage {
		h := hex.EncodeToString(p.ImageHash[:])
		images[h] = p.Image
		pj.HasImage = true
		pj.ImageHash = h
	}
	if p.HasThumbnail {
		h := hex.EncodeToString(p.ThumbnailHash[:])
		images[h] = p.Thumbnail
		pj.HasThumbnail = true
		pj.ThumbnailHash = h
	}
	return pj
}

func toActivityInfoJSON(a model.ActivityInfo) activityInfoJSON {
	return activityInfoJSON{
		Version:             a.Version,
		OwnerIdentityID:     hex.EncodeToString(a.OwnerIdentityID[:]),
		OwnerPublicKey:      hex.EncodeToString(a.OwnerPublicKey),
		OwnerProfileContact: a.OwnerProfileContact,
		Type:                a.Type,
		Lat:                 a.Location.Lat,
		Lon:                 a.Location.Lon,
		Precision:           a.Precision,
		StartTime:           a.StartTime,
		ExpirationTime:      a.ExpirationTime,
		ExtraData:           hex.EncodeToString(a.ExtraData),
		Signature:           hex.EncodeToString(a.Signature),
	}
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Errorf("marshalling %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return xerrors.Errorf("writing %s: %v", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("reading %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return xerrors.Errorf("parsing %s: %v", path, err)
	}
	return nil
}

// copyInstanceDir copies src into dst, skipping the Logs/ and tmp/
// subdirectories.
func copyInstanceDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == "Logs" || e.Name() == "tmp" {
			continue
		}
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyInstanceDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// Load implements `LoadSnapshot`: rehydrate every object from the
// named snapshot's JSON files, restore instance-directory binaries,
// re-establish neighborhood maps via SetNeighborhood, start a LOC server for
// every server, and start the child process of every server whose
// `is-running` flag was recorded. The caller (orchestrator) enforces that
// this is only ever the scenario's first command.
func Load(ctx *simctx.Context, registry *locserver.Registry, supervisors map[model.ServerName]*supervisor.Supervisor, name string) error {
	snapDir := dir(ctx, name)
	if _, err := os.Stat(snapDir); err != nil {
		return xerrors.Errorf("loading snapshot %s: %v", name, err)
	}

	var images map[string]string
	if err := readJSON(filepath.Join(snapDir, "Images.json"), &images); err != nil {
		return err
	}
	imageBytes := make(map[string][]byte, len(images))
	for h, hexData := range images {
		data, err := hex.DecodeString(hexData)
		if err != nil {
			return xerrors.Errorf("loading snapshot %s: decoding image %s: %v", name, h, err)
		}
		imageBytes[h] = data
	}

	var profileServers, proximityServers []serverJSON
	if err := readJSON(filepath.Join(snapDir, "ProfileServers.json"), &profileServers); err != nil {
		return err
	}
	if err := readJSON(filepath.Join(snapDir, "ProximityServers.json"), &proximityServers); err != nil {
		return err
	}

	neighborsByServer := map[model.ServerName][]string{}
	runningByServer := map[model.ServerName]bool{}
	supPaths := supervisor.Paths{BinDir: ctx.Paths.BinDir, ImagesDir: ctx.Paths.ImagesDir, InstancesDir: ctx.Paths.InstancesDir}

	loadServer := func(sj serverJSON, kind model.ServerKind) (*model.Server, error) {
		keys, err := keyPairFromHex(sj.PublicKey, sj.PrivateKey)
		if err != nil {
			return nil, xerrors.Errorf("loading snapshot %s: server %s keys: %v", name, sj.Name, err)
		}
		loc := model.Location{Lat: sj.Lat, Lon: sj.Lon}
		var s *model.Server
		if kind == model.KindProximity {
			s = model.NewProximityServer(model.ServerName(sj.Name), loc, sj.BasePort, sj.InstanceDir)
		} else {
			s = model.NewProfileServer(model.ServerName(sj.Name), loc, sj.BasePort, sj.InstanceDir)
		}
		s.Keys = keys

		if sj.HasNetworkID {
			id, err := hex.DecodeString(sj.NetworkID)
			if err != nil || len(id) != 32 {
				return nil, xerrors.Errorf("loading snapshot %s: server %s network id: %v", name, sj.Name, err)
			}
			var nid model.NetworkID
			copy(nid[:], id)
			s.Lock()
			s.SetNetworkID(nid)
			s.Unlock()
		}

		if kind == model.KindProfile {
			s.Profile.Lock()
			s.Profile.AvailableSlots = sj.AvailableSlots
			for _, idName := range sj.Identities {
				s.Profile.Identities = append(s.Profile.Identities, model.IdentityName(idName))
			}
			s.Profile.Unlock()
		} else {
			s.Proximity.Lock()
			s.Proximity.AvailableSlots = sj.AvailableSlots
			s.Proximity.Unlock()
		}

		ctx.World.AddServer(sj.Group, s)
		neighborsByServer[s.Name] = sj.Neighbors
		runningByServer[s.Name] = sj.Running

		if err := copyInstanceDir(filepath.Join(snapDir, "bin", sj.Name), s.InstanceDir); err != nil {
			return nil, xerrors.Errorf("loading snapshot %s: restoring instance dir for %s: %v", name, sj.Name, err)
		}

		return s, nil
	}

	for _, sj := range profileServers {
		if _, err := loadServer(sj, model.KindProfile); err != nil {
			return err
		}
	}
	for _, sj := range proximityServers {
		if _, err := loadServer(sj, model.KindProximity); err != nil {
			return err
		}
	}

	var identities []identityJSON
	if err := readJSON(filepath.Join(snapDir, "Identities.json"), &identities); err != nil {
		return err
	}
	for _, ij := range identities {
		keys, err := keyPairFromHex(ij.PublicKey, ij.PrivateKey)
		if err != nil {
			return xerrors.Errorf("loading snapshot %s: identity %s keys: %v", name, ij.Name, err)
		}
		id := &model.Identity{
			Name:               model.IdentityName(ij.Name),
			Keys:               keys,
			IDHash:             keys.IdentityID(),
			Host:               model.ServerName(ij.Host),
			ProfileInitialized: ij.ProfileInitialized,
			HostingActive:      ij.HostingActive,
		}
		id.Primary, err = fromProfileJSON(ij.Primary, imageBytes)
		if err != nil {
			return err
		}
		id.Propagated, err = fromProfileJSON(ij.Propagated, imageBytes)
		if err != nil {
			return err
		}
		ctx.World.AddIdentity(ij.Group, id)
	}

	var activities []activityJSON
	if err := readJSON(filepath.Join(snapDir, "Activities.json"), &activities); err != nil {
		return err
	}
	for _, aj := range activities {
		a := &model.Activity{
			Key:           model.ActivityKey{Type: aj.Type, ID: aj.ID},
			Owner:         model.IdentityName(aj.Owner),
			PrimaryServer: model.ServerName(aj.PrimaryServer),
			HostingActive: aj.HostingActive,
		}
		var err error
		a.Primary, err = fromActivityInfoJSON(aj.Primary)
		if err != nil {
			return err
		}
		a.Propagated, err = fromActivityInfoJSON(aj.Propagated)
		if err != nil {
			return err
		}
		ctx.World.AddActivity(aj.Group, a)
		if srv, ok := ctx.World.Servers[a.PrimaryServer]; ok && srv.Kind == model.KindProximity {
			srv.Proximity.Lock()
			srv.Proximity.Primary[a.Key] = struct{}{}
			srv.Proximity.Unlock()
		}
	}

	// Every server gets a LOC server and a supervisor before neighborhoods
	// are wired, since SetNeighborhood needs live World.Servers entries.
	for _, s := range ctx.World.AllServers() {
		locSrv := locserver.New(s, registry)
		if err := locSrv.Listen(fmt.Sprintf("127.0.0.1:%d", s.Port(model.PortOffsetLOC))); err != nil {
			return xerrors.Errorf("loading snapshot %s: listening for %s: %v", name, s.Name, err)
		}
		binName := "ProfileServer"
		if s.Kind == model.KindProximity {
			binName = "ProximityServer"
		}
		supervisors[s.Name] = supervisor.New(s, locSrv, supPaths, binName)
	}
	for _, s := range ctx.World.AllServers() {
		locSrv, ok := registry.Get(s.Name)
		if !ok {
			continue
		}
		peers := map[model.ServerName]*model.Server{}
		for _, peerName := range neighborsByServer[s.Name] {
			if peer, ok := ctx.World.Servers[model.ServerName(peerName)]; ok {
				peers[model.ServerName(peerName)] = peer
			}
		}
		locSrv.SetNeighborhood(peers)
	}

	for _, s := range ctx.World.AllServers() {
		if !runningByServer[s.Name] {
			continue
		}
		sup := supervisors[s.Name]
		if err := sup.Start(context.Background()); err != nil {
			return xerrors.Errorf("loading snapshot %s: starting %s: %v", name, s.Name, err)
		}
	}

	log.Lvl2("snapshot ", name, ": loaded with ", len(ctx.World.AllServers()), " servers, ", len(identities), " identities, ", len(activities), " activities")
	return nil
}

func keyPairFromHex(pubHex, privHex string) (*cryptoid.KeyPair, error) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, err
	}
	priv, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, err
	}
	return cryptoid.KeyPairFromBytes(pub, priv)
}

func fromProfileJSON(pj profileJSON, images map[string][]byte) (model.Profile, error) {
	p := model.Profile{
		Version:  pj.Version,
		Name:     pj.Name,
		Type:     pj.Type,
		Location: model.Location{Lat: pj.Lat, Lon: pj.Lon},
	}
	var err error
	if p.ExtraData, err = hex.DecodeString(pj.ExtraData); err != nil {
		return p, err
	}
	if pj.HasImage {
		p.HasImage = true
		p.Image = images[pj.ImageHash]
		hashBytes, err := hex.DecodeString(pj.ImageHash)
		if err != nil {
			return p, err
		}
		copy(p.ImageHash[:], hashBytes)
	}
	if pj.HasThumbnail {
		p.HasThumbnail = true
		p.Thumbnail = images[pj.ThumbnailHash]
		hashBytes, err := hex.DecodeString(pj.ThumbnailHash)
		if err != nil {
			return p, err
		}
		copy(p.ThumbnailHash[:], hashBytes)
	}
	return p, nil
}

func fromActivityInfoJSON(aj activityInfoJSON) (model.ActivityInfo, error) {
	a := model.ActivityInfo{
		Version:             aj.Version,
		OwnerProfileContact: aj.OwnerProfileContact,
		Type:                aj.Type,
		Location:            model.Location{Lat: aj.Lat, Lon: aj.Lon},
		Precision:           aj.Precision,
		StartTime:           aj.StartTime,
		ExpirationTime:      aj.ExpirationTime,
	}
	ownerID, err := hex.DecodeString(aj.OwnerIdentityID)
	if err != nil {
		return a, err
	}
	copy(a.OwnerIdentityID[:], ownerID)
	if a.OwnerPublicKey, err = hex.DecodeString(aj.OwnerPublicKey); err != nil {
		return a, err
	}
	if a.ExtraData, err = hex.DecodeString(aj.ExtraData); err != nil {
		return a, err
	}
	if a.Signature, err = hex.DecodeString(aj.Signature); err != nil {
		return a, err
	}
	return a, nil
}
