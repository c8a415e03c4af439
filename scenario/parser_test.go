package scenario

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBasicScenario(t *testing.T) {
	src := `# comment
ProfileServer A 2 10000 10.0 20.0 50000
Neighborhood A 1 2
StartServer A 1 2
Identity Ia 110 Test 10.0 20.0 50000 * 80 * 80 A 1 1
Delay 30
TestQuery A 1 2 I* * true 10.0 20.0 30000
`
	cmds, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, cmds, 6)
	require.IsType(t, &ServerKindCommand{}, cmds[0])
	require.IsType(t, &NeighborhoodCommand{}, cmds[1])
	require.IsType(t, &ServerRangeCommand{}, cmds[2])
	require.IsType(t, &IdentityCommand{}, cmds[3])
	require.IsType(t, &DelayCommand{}, cmds[4])
	q := cmds[5].(*TestQueryCommand)
	require.True(t, q.HasLocation)
	require.Equal(t, 30000.0, q.Radius)
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := Parse(strings.NewReader("Bogus 1 2 3\n"))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 1, pe.Line)
}

func TestParsePortOverlapRejected(t *testing.T) {
	src := `ProfileServer A 1 10000 0 0 0
ProfileServer B 1 10010 0 0 0
`
	_, err := Parse(strings.NewReader(src))
	require.Error(t, err)
}

func TestParsePortNonOverlapAccepted(t *testing.T) {
	src := `ProfileServer A 1 10000 0 0 0
ProfileServer B 1 10020 0 0 0
`
	_, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
}

func TestParseCountOutOfRange(t *testing.T) {
	_, err := Parse(strings.NewReader("ProfileServer A 1000 10000 0 0 0\n"))
	require.Error(t, err)
}

func TestParseNoLocationSentinel(t *testing.T) {
	src := "TestQuery A 1 1 ** ** false NO_LOCATION NO_LOCATION 0\n"
	cmds, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	q := cmds[0].(*TestQueryCommand)
	require.False(t, q.HasLocation)
}

func TestParseTestQueryActivityAnySentinel(t *testing.T) {
	src := "TestQueryActivity PX 1 2 ** ANY ANY NO_LOCATION NO_LOCATION 0\n"
	cmds, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	q := cmds[0].(*TestQueryActivityCommand)
	require.False(t, q.HasStartNotAfter)
	require.False(t, q.HasExpirationNotBefore)
	require.False(t, q.HasLocation)
}

func TestParseActivityLifetimeConstraints(t *testing.T) {
	src := "Activity A 10 10.0 20.0 0 1000 50000 -3600 3600 7200 14400 I 1 1\n"
	cmds, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.IsType(t, &ActivityCommand{}, cmds[0])
}

func TestParseActivityRejectsBadLifetime(t *testing.T) {
	// startTo + lifeTo > 86400
	src := "Activity A 10 10.0 20.0 0 1000 50000 0 86000 1 86400 I 1 1\n"
	_, err := Parse(strings.NewReader(src))
	require.Error(t, err)
}
