package awsprovider

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// AutomationClient is the subset of the SSM client used by [Automation].
type AutomationClient interface {
	StartAutomationExecution(ctx context.Context, in *ssm.StartAutomationExecutionInput, optFns ...func(*ssm.Options)) (*ssm.StartAutomationExecutionOutput, error)
}

// Automation implements [domain.AutomationAPI] over SSM Automation.
type Automation struct {
	Client  AutomationClient
	Timeout time.Duration
}

func (a *Automation) Start(ctx context.Context, document string, params map[string][]string) (domain.AutomationExecutionID, error) {
	ctx, cancel := bounded(ctx, a.Timeout)
	defer cancel()
	out, err := a.Client.StartAutomationExecution(ctx, &ssm.StartAutomationExecutionInput{
		DocumentName: aws.String(document),
		Parameters:   params,
	})
	if err != nil {
		return "", apiError("start automation execution", err)
	}
	return domain.AutomationExecutionID(aws.ToString(out.AutomationExecutionId)), nil
}
