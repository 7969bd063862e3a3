package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	editSchema := compile("edit.schema.json")
	querySchema := compile("query.schema.json")
	pathSchema := compile("path.schema.json")
	statsSchema := compile("stats.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"planner1",
	  "capabilities":{"max_queue":8,"stats_stream":true}
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"S000001",
	  "world_params":{
	    "tick_rate_hz":10,
	    "grid_size":[256,256],
	    "cell_size":16.0,
	    "day_ticks":14400,
	    "seed":1337
	  },
	  "catalogs":{
	    "road_classes":{"digest":"deadbeef","count":5},
	    "profiles":{"digest":"deadbeef","count":3},
	    "tuning_digest":"deadbeef"
	  }
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var place any
	_ = json.Unmarshal([]byte(`{
	  "type":"EDIT",
	  "protocol_version":"1.0",
	  "id":"E1",
	  "op":"PLACE_ROAD",
	  "place":{"from":[128.0,40.0],"to":[512.0,40.0],"class":"LOCAL"}
	}`), &place)
	validate(editSchema, place)

	var upgrade any
	_ = json.Unmarshal([]byte(`{
	  "type":"EDIT",
	  "protocol_version":"1.0",
	  "id":"E2",
	  "op":"UPGRADE_ROAD",
	  "upgrade":{"segment_id":3,"class":"AVENUE"}
	}`), &upgrade)
	validate(editSchema, upgrade)

	var query any
	_ = json.Unmarshal([]byte(`{
	  "type":"QUERY",
	  "protocol_version":"1.0",
	  "id":"Q1",
	  "kind":"PATH",
	  "path":{"from":[8,2],"to":[32,2],"profile":"CAR"}
	}`), &query)
	validate(querySchema, query)

	var path any
	_ = json.Unmarshal([]byte(`{
	  "type":"PATH",
	  "protocol_version":"1.0",
	  "ack_for":"Q1",
	  "accepted":true,
	  "waypoints":[[8,2],[9,2],[10,2]],
	  "cost":2.5,
	  "degraded":false,
	  "server_tick":42
	}`), &path)
	validate(pathSchema, path)

	var stats any
	_ = json.Unmarshal([]byte(`{
	  "type":"STATS",
	  "protocol_version":"1.0",
	  "tick":42,
	  "real_agents":1800,
	  "virtual_total":52000,
	  "commuting":420,
	  "commute_volume":812.5,
	  "avg_congestion":0.31,
	  "graph":{"nodes":96,"edges":240,"generation":7,"fallback":false}
	}`), &stats)
	validate(statsSchema, stats)
}
