package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/assert"
)

func TestDefaults(t *testing.T) {
	c := Default()
	assert.NilError(t, c.Validate())
	assert.Equal(t, c.ADU.ConfigPath, "/etc/adu/du-config.json")
	assert.Equal(t, c.ADU.SWVersionsPath, "/etc/sw-versions")
	assert.Equal(t, c.Twin.QueueCapacity, 100)
	assert.Equal(t, c.IoTHub.ClientType, ClientTypeDevice)
	assert.Equal(t, c.TokenLifetime(), time.Hour)
	assert.Check(t, c.ProbeInventory())
	assert.Equal(t, c.Metrics.Listen, "")
}

func TestParseOverrides(t *testing.T) {
	c, err := Parse([]byte(`
[adu]
config_path = "testfiles/du-config.json"

[twin]
queue_capacity = 7

[iothub]
client_type = "module"
sas_token_lifetime = "30m"

[inventory]
probe = false

[metrics]
listen = "127.0.0.1:9100"
`))
	assert.NilError(t, err)
	assert.Equal(t, c.ADU.ConfigPath, "testfiles/du-config.json")
	assert.Equal(t, c.ADU.SWVersionsPath, "/etc/sw-versions")
	assert.Equal(t, c.Twin.QueueCapacity, 7)
	assert.Equal(t, c.IoTHub.ClientType, ClientTypeModule)
	assert.Equal(t, c.TokenLifetime(), 30*time.Minute)
	assert.Check(t, !c.ProbeInventory())
	assert.Equal(t, c.Metrics.Listen, "127.0.0.1:9100")
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"capacity":    "[twin]\nqueue_capacity = -1\n",
		"client type": "[iothub]\nclient_type = \"edge\"\n",
		"lifetime":    "[iothub]\nsas_token_lifetime = \"soon\"\n",
		"short":       "[iothub]\nsas_token_lifetime = \"5s\"\n",
		"syntax":      "[twin\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Assert(t, err != nil)
		})
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.NilError(t, err)
	assert.DeepEqual(t, c, Default())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	assert.NilError(t, ioutil.WriteFile(path, []byte("[twin]\nqueue_capacity = 3\n"), 0600))

	c, err := Load(path)
	assert.NilError(t, err)
	assert.Equal(t, c.Twin.QueueCapacity, 3)

	assert.NilError(t, os.Chmod(path, 0))
	if os.Getuid() != 0 {
		_, err = Load(path)
		assert.ErrorContains(t, err, "cannot read")
	}
}
