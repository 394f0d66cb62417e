package csvio

import (
	"strings"
	"testing"

	"github.com/ipamtools/bamsync/internal/model"
)

const happyPathInput = `1,ip4_block,create,Default,,10.0.0.0/8,CorpBlock
2,ip4_network,create,Default,10.0.0.0/8,10.1.0.0/24,CorpNetwork
3,ip4_address,create,Default,,,server1,10.1.0.10,00:11:22:33:44:55,STATIC
`

func TestReadAllPositional(t *testing.T) {
	rows, err := NewReader(strings.NewReader(happyPathInput)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ReadAll() = %d rows, want 3", len(rows))
	}
	for _, pr := range rows {
		if pr.Err != nil {
			t.Errorf("row %s: unexpected validation error: %v", pr.Row.RowID, pr.Err)
		}
	}

	block := rows[0].Row
	if block.RowID != "1" || block.ObjectType != model.ObjectIP4Block || block.Action != model.ActionCreate {
		t.Errorf("block scaffolding = %s/%s/%s", block.RowID, block.ObjectType, block.Action)
	}
	if block.Config != "Default" || block.CIDR() != "10.0.0.0/8" || block.Name() != "CorpBlock" {
		t.Errorf("block attrs = %s/%s/%s", block.Config, block.CIDR(), block.Name())
	}
	if block.HasAttr("parent") {
		t.Error("empty parent cell must be omitted from Attrs")
	}

	network := rows[1].Row
	if network.Parent() != "10.0.0.0/8" || network.CIDR() != "10.1.0.0/24" {
		t.Errorf("network parent/cidr = %s/%s", network.Parent(), network.CIDR())
	}

	address := rows[2].Row
	if address.Name() != "server1" || address.Address() != "10.1.0.10" {
		t.Errorf("address name/ip = %s/%s", address.Name(), address.Address())
	}
	if address.MAC() != "00:11:22:33:44:55" || address.State() != "STATIC" {
		t.Errorf("address mac/state = %s/%s", address.MAC(), address.State())
	}
}

func TestReadAllHeaderMode(t *testing.T) {
	input := strings.Join([]string{
		"row_id,action,object_type,config,name,view_path,owner_team,id",
		"z1,create,dns_zone,Default,example.com,Default/internal,platform,",
		"z2,update,dns_zone,Default,example.org,Default/internal,,4711",
	}, "\n")

	rows, err := NewReader(strings.NewReader(input)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ReadAll() = %d rows, want 2", len(rows))
	}

	zone := rows[0].Row
	if rows[0].Err != nil {
		t.Fatalf("row z1 validation error: %v", rows[0].Err)
	}
	if zone.Name() != "example.com" || zone.ViewPath() != "Default/internal" {
		t.Errorf("zone name/view = %s/%s", zone.Name(), zone.ViewPath())
	}
	// Unknown columns survive in Attrs and will participate in diffing.
	if zone.Attr("owner_team") != "platform" {
		t.Errorf("owner_team = %q, want platform", zone.Attr("owner_team"))
	}

	update := rows[1].Row
	if update.BAMID != 4711 {
		t.Errorf("id column BAMID = %d, want 4711", update.BAMID)
	}
}

func TestReadAllSkipsCommentsAndBlanks(t *testing.T) {
	input := "# rollback annotation\n\n1,ip4_block,create,Default,,10.0.0.0/8,Corp\n\n"
	rows, err := NewReader(strings.NewReader(input)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("ReadAll() = %d rows, want 1", len(rows))
	}
}

func TestReadAllEmptyInput(t *testing.T) {
	if _, err := NewReader(strings.NewReader("")).ReadAll(); err == nil {
		t.Error("ReadAll(empty) error = nil, want error")
	}
	if _, err := NewReader(strings.NewReader("row_id,object_type\n")).ReadAll(); err == nil {
		t.Error("ReadAll(header only) error = nil, want error")
	}
}

func TestReadAllRowLevelErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "invalid cidr",
			input:   "1,ip4_network,create,Default,,10.1.0.0/33,Net",
			wantErr: "invalid CIDR",
		},
		{
			name:    "invalid mac",
			input:   "1,ip4_address,create,Default,,,srv,10.1.0.10,xx:yy,STATIC",
			wantErr: "invalid MAC",
		},
		{
			name:    "missing required cidr",
			input:   "row_id,object_type,action,config,name\n1,ip4_network,create,Default,Net",
			wantErr: "required for create",
		},
		{
			name:    "unknown object type",
			input:   "1,flux_capacitor,create,Default",
			wantErr: "unknown type",
		},
		{
			name:    "unknown action",
			input:   "1,ip4_block,destroy,Default,,10.0.0.0/8",
			wantErr: "unknown action",
		},
		{
			name:    "update without id or key",
			input:   "row_id,object_type,action,config\n1,device,update,Default",
			wantErr: "addresses no resource",
		},
		{
			name:    "zone update without view",
			input:   "row_id,object_type,action,config,name\n1,dns_zone,update,Default,example.com",
			wantErr: "view_path",
		},
		{
			name:    "too many positional columns",
			input:   "1,ip4_block,create,Default,,10.0.0.0/8,Corp,a,b,c,d,e,f",
			wantErr: "positional layout",
		},
		{
			name:    "bad id column",
			input:   "row_id,object_type,action,config,name,id\n1,device,update,Default,router1,abc",
			wantErr: "not an integer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := NewReader(strings.NewReader(tt.input)).ReadAll()
			if err != nil {
				t.Fatalf("ReadAll() parse error = %v, want row-level error", err)
			}
			if len(rows) != 1 {
				t.Fatalf("ReadAll() = %d rows, want 1", len(rows))
			}
			if rows[0].Err == nil {
				t.Fatal("row error = nil, want validation error")
			}
			if !strings.Contains(rows[0].Err.Error(), tt.wantErr) {
				t.Errorf("row error = %v, want to contain %q", rows[0].Err, tt.wantErr)
			}
		})
	}
}

func TestReadAllDuplicateRowID(t *testing.T) {
	input := "1,ip4_block,create,Default,,10.0.0.0/8,A\n1,ip4_block,create,Default,,11.0.0.0/8,B\n"
	rows, err := NewReader(strings.NewReader(input)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if rows[0].Err != nil {
		t.Errorf("first occurrence flagged: %v", rows[0].Err)
	}
	if rows[1].Err == nil || !strings.Contains(rows[1].Err.Error(), "duplicate") {
		t.Errorf("second occurrence error = %v, want duplicate", rows[1].Err)
	}
}

func TestReadAllMalformedCSV(t *testing.T) {
	input := "1,ip4_block,create,\"unterminated\n"
	if _, err := NewReader(strings.NewReader(input)).ReadAll(); err == nil {
		t.Error("ReadAll(malformed) error = nil, want parse error")
	}
}
