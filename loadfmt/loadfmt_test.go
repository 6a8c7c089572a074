package loadfmt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qksidmx/skgraph/loadfmt"
	"github.com/Qksidmx/skgraph/request"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/skgerrors"
)

func weightedSchema() *schema.MetaAttributes {
	return &schema.MetaAttributes{
		Label: "knows", Tag: 1, IsWeighted: true,
		Cols: []schema.ColumnDescriptor{{Name: "since", Type: schema.ColumnTypeFixedBytes, ID: 0, ValueSize: 8}},
	}
}

func TestCSVEdgeParser_ParsesRows(t *testing.T) {
	data := "1,2,0.5,2020\n3,4,1.5,2021\n"
	var got []request.EdgeRequest
	p := loadfmt.CSVEdgeParser{}
	err := p.Parse(strings.NewReader(data), "knows", weightedSchema(), func(r request.EdgeRequest) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].Src)
	assert.Equal(t, uint32(2), got[0].Dst)
	assert.Equal(t, float32(0.5), got[0].Weight)
	assert.Equal(t, "since", got[0].Props[0].Name)
}

func TestCSVEdgeParser_SkipsHeaderAndComments(t *testing.T) {
	data := "src,dst,weight,since\n#comment\n1,2,0.5,2020\n"
	var got []request.EdgeRequest
	p := loadfmt.CSVEdgeParser{IgnoreHeader: true}
	err := p.Parse(strings.NewReader(data), "knows", weightedSchema(), func(r request.EdgeRequest) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestCSVEdgeParser_RejectsSelfLoop(t *testing.T) {
	data := "1,1,0.5,2020\n"
	p := loadfmt.CSVEdgeParser{}
	err := p.Parse(strings.NewReader(data), "knows", weightedSchema(), func(request.EdgeRequest) error { return nil })
	assert.ErrorIs(t, err, skgerrors.ErrUnsupportedSelfLoop)
}

func TestCSVEdgeParser_RejectsWrongFieldCount(t *testing.T) {
	data := "1,2,0.5\n"
	p := loadfmt.CSVEdgeParser{}
	err := p.Parse(strings.NewReader(data), "knows", weightedSchema(), func(request.EdgeRequest) error { return nil })
	assert.ErrorIs(t, err, skgerrors.ErrInvalidArgument)
}
