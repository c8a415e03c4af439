package supervisor

import (
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// ProfileConfig is ProfileServer.conf, generated one key per line as
// `key = value` by the toml encoder; a flat struct with no sub-tables
// renders to exactly the format the child process parses.
type ProfileConfig struct {
	TestMode                    bool   `toml:"test_mode"`
	ExternalServerAddress       string `toml:"external_server_address"`
	BindToInterface             string `toml:"bind_to_interface"`
	PrimaryInterfacePort        int    `toml:"primary_interface_port"`
	ServerNeighborInterfacePort int    `toml:"server_neighbor_interface_port"`
	NonCustomerClientPort       int    `toml:"non_customer_client_port"`
	CustomerClientPort          int    `toml:"customer_client_port"`
	TLSServerCertificate        string `toml:"tls_server_certificate"`
	ImageDataFolder             string `toml:"image_data_folder"`
	TmpDataFolder               string `toml:"tmp_data_folder"`
	DBFileName                  string `toml:"db_file_name"`
	MaxHostedIdentities         int    `toml:"max_hosted_identities"`
	MaxIdentityRelations        int    `toml:"max_identity_relations"`
	NeighborhoodInitParallelism int    `toml:"neighborhood_initialization_parallelism"`
	LOCPort                     int    `toml:"loc_port"`
	NeighborProfilesExpiration  int    `toml:"neighbor_profiles_expiration_time"`
	MaxNeighborhoodSize         int    `toml:"max_neighborhood_size"`
	MaxFollowerServersCount     int    `toml:"max_follower_servers_count"`
	FollowerRefreshTime         int    `toml:"follower_refresh_time"`
	CanAPIPort                  int    `toml:"can_api_port"`
}

// ProximityConfig is ProximityServer.conf.
type ProximityConfig struct {
	TestMode                    bool   `toml:"test_mode"`
	ExternalServerAddress       string `toml:"external_server_address"`
	BindToInterface             string `toml:"bind_to_interface"`
	PrimaryInterfacePort        int    `toml:"primary_interface_port"`
	NeighborInterfacePort       int    `toml:"neighbor_interface_port"`
	ClientPort                  int    `toml:"non_customer_client_port"`
	CustomerClientPort          int    `toml:"customer_client_port"`
	TLSServerCertificate        string `toml:"tls_server_certificate"`
	ImageDataFolder             string `toml:"image_data_folder"`
	TmpDataFolder               string `toml:"tmp_data_folder"`
	DBFileName                  string `toml:"db_file_name"`
	MaxActivities               int    `toml:"max_activities"`
	NeighborhoodInitParallelism int    `toml:"neighborhood_initialization_parallelism"`
	LOCPort                     int    `toml:"loc_port"`
	NeighborExpirationTime      int    `toml:"neighbor_expiration_time"`
	MaxNeighborhoodSize         int    `toml:"max_neighborhood_size"`
	MaxFollowerServersCount     int    `toml:"max_follower_servers_count"`
	FollowerRefreshTime         int    `toml:"follower_refresh_time"`
	CanAPIPort                  int    `toml:"can_api_port"`
}

// writeConfig renders cfg (a ProfileConfig or ProximityConfig) to path as a
// flat `key = value` file.
func writeConfig(path string, cfg interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("creating config file: %v", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return xerrors.Errorf("encoding config file: %v", err)
	}
	return nil
}
