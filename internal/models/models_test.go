package models

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignAction_AllowedFrom(t *testing.T) {
	testCases := []struct {
		action CampaignAction
		status CampaignStatus
		want   bool
	}{
		{CampaignActionStart, CampaignStatusDraft, true},
		{CampaignActionStart, CampaignStatusPaused, true},
		{CampaignActionStart, CampaignStatusRunning, false},
		{CampaignActionStart, CampaignStatusCompleted, false},
		{CampaignActionStart, CampaignStatusCancelled, false},
		{CampaignActionPause, CampaignStatusRunning, true},
		{CampaignActionPause, CampaignStatusDraft, false},
		{CampaignActionPause, CampaignStatusPaused, false},
		{CampaignActionCancel, CampaignStatusRunning, true},
		{CampaignActionCancel, CampaignStatusPaused, true},
		{CampaignActionCancel, CampaignStatusCompleted, false},
		{CampaignActionCancel, CampaignStatusCancelled, false},
		{CampaignAction("archive"), CampaignStatusDraft, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.action)+"_from_"+string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.action.AllowedFrom(tc.status))
		})
	}
}

func TestCampaignStatus_IsTerminal(t *testing.T) {
	assert.True(t, CampaignStatusCompleted.IsTerminal())
	assert.True(t, CampaignStatusCancelled.IsTerminal())
	assert.False(t, CampaignStatusPaused.IsTerminal())
	assert.False(t, CampaignStatus("bogus").Valid())
}

func TestCampaign_Validate(t *testing.T) {
	user := uuid.New()
	valid := Campaign{
		Name:             "Spring outreach",
		MessageTemplate:  "Hi [Customer Name]",
		VehicleReference: VehicleReferenceModel,
		AssignmentMode:   AssignmentSingleUser,
		AssignedUserID:   &user,
		CampaignType:     CampaignTypeCustom,
		DelaySeconds:     65,
	}
	require.NoError(t, valid.Validate())

	noUser := valid
	noUser.AssignedUserID = nil
	assert.EqualError(t, noUser.Validate(), "assigned_user_id is required for single_user assignment")

	badMode := valid
	badMode.AssignmentMode = "weighted"
	assert.Error(t, badMode.Validate())

	negative := valid
	negative.DelaySeconds = -1
	assert.Error(t, negative.Validate())
}

func TestMetadata_ScanAndMerge(t *testing.T) {
	var m Metadata
	require.NoError(t, m.Scan([]byte(`{"listing_link":"https://kijiji.ca/1","source":"campaign"}`)))
	assert.Equal(t, "campaign", m["source"])

	merged := m.Merge(Metadata{"source": "inbound", "campaign_id": float64(3)})
	assert.Equal(t, "inbound", merged["source"])
	assert.Equal(t, "https://kijiji.ca/1", merged["listing_link"])
	assert.Equal(t, "campaign", m["source"], "merge must not mutate the receiver")

	var empty Metadata
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)
	assert.Error(t, empty.Scan(42))
}

func TestStringMap_Value(t *testing.T) {
	v, err := StringMap(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)

	var m StringMap
	require.NoError(t, m.Scan(`{"Trim":"SXT"}`))
	assert.Equal(t, "SXT", m["Trim"])
}

func TestPreview(t *testing.T) {
	short := "Hi Pat"
	assert.Equal(t, short, Preview(short))

	long := strings.Repeat("é", 150)
	assert.Len(t, []rune(Preview(long)), PreviewLength)
}
