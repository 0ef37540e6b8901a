package ec2

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

type EC2API interface {
	DescribeSecurityGroups(ctx context.Context, params *awsec2.DescribeSecurityGroupsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeSecurityGroupsOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *awsec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*awsec2.Options)) (*awsec2.AuthorizeSecurityGroupIngressOutput, error)
	RevokeSecurityGroupIngress(ctx context.Context, params *awsec2.RevokeSecurityGroupIngressInput, optFns ...func(*awsec2.Options)) (*awsec2.RevokeSecurityGroupIngressOutput, error)
}

type Client struct {
	api EC2API
}

func NewClient(api EC2API) *Client {
	return &Client{api: api}
}

// ErrorCode returns the EC2 API error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// ListSecurityGroups returns every security group in the region.
func (c *Client) ListSecurityGroups(ctx context.Context) ([]SecurityGroup, error) {
	return c.describe(ctx, nil)
}

// DescribeIngress returns the live ingress rules of one group.
func (c *Client) DescribeIngress(ctx context.Context, groupID string) ([]IngressRule, error) {
	sgs, err := c.describe(ctx, []string{groupID})
	if err != nil {
		return nil, err
	}
	for _, sg := range sgs {
		if sg.GroupID == groupID {
			return sg.Ingress, nil
		}
	}
	return nil, fmt.Errorf("DescribeSecurityGroups: group %s not found", groupID)
}

func (c *Client) describe(ctx context.Context, groupIDs []string) ([]SecurityGroup, error) {
	var sgs []SecurityGroup
	var nextToken *string

	for {
		input := &awsec2.DescribeSecurityGroupsInput{NextToken: nextToken}
		if len(groupIDs) > 0 {
			input.GroupIds = groupIDs
		}

		out, err := c.api.DescribeSecurityGroups(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("DescribeSecurityGroups: %w", err)
		}

		for _, sg := range out.SecurityGroups {
			sgs = append(sgs, SecurityGroup{
				GroupID: aws.ToString(sg.GroupId),
				Name:    aws.ToString(sg.GroupName),
				VPCID:   aws.ToString(sg.VpcId),
				Ingress: ingressRules(sg.IpPermissions),
			})
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return sgs, nil
}

func ingressRules(perms []types.IpPermission) []IngressRule {
	rules := make([]IngressRule, 0, len(perms))
	for _, p := range perms {
		rule := IngressRule{
			Protocol: NormalizeProtocol(aws.ToString(p.IpProtocol)),
			FromPort: portOrNone(p.FromPort),
			ToPort:   portOrNone(p.ToPort),
		}
		for _, r := range p.IpRanges {
			if cidr := aws.ToString(r.CidrIp); cidr != "" {
				rule.CIDRs = append(rule.CIDRs, cidr)
			}
		}
		rules = append(rules, rule)
	}
	return rules
}

func portOrNone(p *int32) int {
	if p == nil {
		return -1
	}
	return int(*p)
}

func ipPermissions(rules []IngressRule) []types.IpPermission {
	perms := make([]types.IpPermission, 0, len(rules))
	for _, r := range rules {
		perm := types.IpPermission{
			IpProtocol: aws.String(r.Protocol),
			FromPort:   aws.Int32(int32(r.FromPort)),
			ToPort:     aws.Int32(int32(r.ToPort)),
		}
		for _, cidr := range r.CIDRs {
			perm.IpRanges = append(perm.IpRanges, types.IpRange{CidrIp: aws.String(cidr)})
		}
		perms = append(perms, perm)
	}
	return perms
}

// AuthorizeIngress grants all rules in one call.
func (c *Client) AuthorizeIngress(ctx context.Context, groupID string, rules []IngressRule) error {
	if len(rules) == 0 {
		return nil
	}
	_, err := c.api.AuthorizeSecurityGroupIngress(ctx, &awsec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: ipPermissions(rules),
	})
	if err != nil {
		return fmt.Errorf("AuthorizeSecurityGroupIngress(%s): %w", groupID, err)
	}
	return nil
}

// RevokeIngress removes all rules in one call.
func (c *Client) RevokeIngress(ctx context.Context, groupID string, rules []IngressRule) error {
	if len(rules) == 0 {
		return nil
	}
	_, err := c.api.RevokeSecurityGroupIngress(ctx, &awsec2.RevokeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: ipPermissions(rules),
	})
	if err != nil {
		return fmt.Errorf("RevokeSecurityGroupIngress(%s): %w", groupID, err)
	}
	return nil
}
