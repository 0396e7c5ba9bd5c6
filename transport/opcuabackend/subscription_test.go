package opcuabackend

import (
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martenstenden/Data-Logger-sub001/types"
)

func TestMonitoredItemRequestKeepsOnlyNewestSample(t *testing.T) {
	id := ua.NewStringNodeID(2, "Plant.Pressure")
	tag := &types.TagConfig{Name: "pressure", NodeID: "ns=2;s=Plant.Pressure", SamplingInterval: 250 * time.Millisecond}

	req := monitoredItemRequest(tag, id, 7, time.Second)

	require.NotNil(t, req.RequestedParameters)
	assert.Equal(t, uint32(1), req.RequestedParameters.QueueSize)
	assert.True(t, req.RequestedParameters.DiscardOldest)
	assert.Equal(t, uint32(7), req.RequestedParameters.ClientHandle)
	assert.Equal(t, 250.0, req.RequestedParameters.SamplingInterval)

	require.NotNil(t, req.ItemToMonitor)
	assert.Equal(t, id, req.ItemToMonitor.NodeID)
	assert.Equal(t, ua.AttributeIDValue, req.ItemToMonitor.AttributeID)
	assert.Equal(t, ua.MonitoringModeReporting, req.MonitoringMode)
}

func TestMonitoredItemRequestFallsBackToPublishingInterval(t *testing.T) {
	id := ua.NewStringNodeID(2, "Plant.Temp")
	tag := &types.TagConfig{Name: "temp", NodeID: "ns=2;s=Plant.Temp"}

	req := monitoredItemRequest(tag, id, 1, 500*time.Millisecond)
	assert.Equal(t, 500.0, req.RequestedParameters.SamplingInterval)
}
