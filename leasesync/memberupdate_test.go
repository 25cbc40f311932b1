package leasesync

import (
	"testing"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
)

func TestPrimaryFlagTransition(t *testing.T) {
	roommateId := "r-200"
	cases := []struct {
		name            string
		link            *models.ExternalIdentityLink
		primaryId       string
		expectedPromote bool
		expectedDemote  bool
	}{
		{
			name:      "primary stays primary",
			link:      &models.ExternalIdentityLink{ExternalId: "t-100", IsPrimary: true},
			primaryId: "t-100",
		},
		{
			name:            "roommate becomes primary",
			link:            &models.ExternalIdentityLink{ExternalId: "t-100", ExternalRoommateId: &roommateId},
			primaryId:       "r-200",
			expectedPromote: true,
		},
		{
			name:           "former primary is demoted",
			link:           &models.ExternalIdentityLink{ExternalId: "t-100", IsPrimary: true},
			primaryId:      "t-999",
			expectedDemote: true,
		},
		{
			name:      "non-primary roommate is untouched",
			link:      &models.ExternalIdentityLink{ExternalId: "t-100", ExternalRoommateId: &roommateId},
			primaryId: "t-100",
		},
		{
			name:      "no link means no transition",
			primaryId: "t-100",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			promote, demote := primaryFlagTransition(tc.link, tc.primaryId)
			if promote != tc.expectedPromote || demote != tc.expectedDemote {
				t.Fatalf("expected promote=%v demote=%v, got promote=%v demote=%v",
					tc.expectedPromote, tc.expectedDemote, promote, demote)
			}
		})
	}
}
