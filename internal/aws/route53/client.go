package route53

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsr53 "github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
)

type Route53API interface {
	ChangeResourceRecordSets(ctx context.Context, params *awsr53.ChangeResourceRecordSetsInput, optFns ...func(*awsr53.Options)) (*awsr53.ChangeResourceRecordSetsOutput, error)
	ListResourceRecordSets(ctx context.Context, params *awsr53.ListResourceRecordSetsInput, optFns ...func(*awsr53.Options)) (*awsr53.ListResourceRecordSetsOutput, error)
}

type Client struct {
	api Route53API
}

func NewClient(api Route53API) *Client {
	return &Client{api: api}
}

// UpsertA creates or replaces the single-value A record for name.
func (c *Client) UpsertA(ctx context.Context, zoneID, name, ip string, ttl int64) (ChangeInfo, error) {
	out, err := c.api.ChangeResourceRecordSets(ctx, &awsr53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action: types.ChangeActionUpsert,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name:            aws.String(name),
					Type:            types.RRTypeA,
					TTL:             aws.Int64(ttl),
					ResourceRecords: []types.ResourceRecord{{Value: aws.String(ip)}},
				},
			}},
		},
	})
	if err != nil {
		return ChangeInfo{}, fmt.Errorf("ChangeResourceRecordSets(%s): %w", name, err)
	}

	var info ChangeInfo
	if out.ChangeInfo != nil {
		info.ID = aws.ToString(out.ChangeInfo.Id)
		info.Status = string(out.ChangeInfo.Status)
	}
	return info, nil
}

// ListARecords returns every A record in the zone.
func (c *Client) ListARecords(ctx context.Context, zoneID string) ([]ARecord, error) {
	var records []ARecord
	input := &awsr53.ListResourceRecordSetsInput{HostedZoneId: aws.String(zoneID)}

	for {
		out, err := c.api.ListResourceRecordSets(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("ListResourceRecordSets: %w", err)
		}

		for _, rr := range out.ResourceRecordSets {
			if rr.Type != types.RRTypeA || len(rr.ResourceRecords) == 0 {
				continue
			}
			records = append(records, ARecord{
				Name:  aws.ToString(rr.Name),
				Value: aws.ToString(rr.ResourceRecords[0].Value),
				TTL:   aws.ToInt64(rr.TTL),
			})
		}

		if !out.IsTruncated {
			break
		}
		input = &awsr53.ListResourceRecordSetsInput{
			HostedZoneId:          aws.String(zoneID),
			StartRecordName:       out.NextRecordName,
			StartRecordType:       out.NextRecordType,
			StartRecordIdentifier: out.NextRecordIdentifier,
		}
	}
	return records, nil
}
