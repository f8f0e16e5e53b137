/**
 * @description
 * SMS composition. The Composer turns a NotificationIntent into message text
 * with the language model; sending is a separate step done by the Dispatcher.
 *
 * @notes
 * - Reminder and confirmation prompts never receive the token balance.
 * - Rewards and redemption messages must carry the balance (and redemption
 *   code). When the model drops one of them the house template is used.
 */

package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/prompt"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type composeInput struct {
	NotificationType string
	UserName         string
	TokenBalance     string
	ServiceRedeemed  string
	RedemptionCode   string
	AppointmentTime  string
	HospitalName     string
	SuggestedTime    string
}

var smsSchema = prompt.Object(map[string]*genai.Schema{
	"smsMessage": prompt.String("The generated SMS message."),
}, "smsMessage")

var composePrompt = prompt.Must[composeInput, domain.ComposedMessage]("generateSmsNotification", `You are an expert SMS notification generator for HeroDrop+,
a blood donation platform that rewards donors with DamuTokens.

Generate an SMS message based on the following information:

Notification Type: {{.NotificationType}}
User Name: {{.UserName}}
{{- if .TokenBalance}}
Token Balance: {{.TokenBalance}}
{{- end}}
{{- if .ServiceRedeemed}}
Service Redeemed: {{.ServiceRedeemed}}
{{- end}}
{{- if .RedemptionCode}}
Redemption Code: {{.RedemptionCode}}
{{- end}}
{{- if .SuggestedTime}}
Suggested Visit Time: {{.SuggestedTime}}
{{- end}}
{{- if .AppointmentTime}}
Appointment Time: {{.AppointmentTime}}
{{- end}}
{{- if .HospitalName}}
Hospital Name: {{.HospitalName}}
{{- end}}

Include the token balance in the SMS message only for 'rewards' and 'redemption' notifications.
Omit it for 'reminder' and 'confirmation' notifications.
For 'redemption' notifications always include the redemption code exactly as given.

Here are example SMS notifications:

Rewards: '👏🏽 Congrats, Jane! You've earned 100 DamuTokens. Total balance: 250 DT. Redeem now at damuhero.co.ke/redeem'
Redemption: '🎉 Jane, you've redeemed Free Lab Test! Your redemption code is FREE-4821. Total balance: 40 DT.'
Reminder: '🔔 Hi Jane, your appointment at Kenyatta National Hospital is scheduled for 2024-08-15 at 10:00.'
Confirmation: '✅ Hi Jane, your appointment at Kenyatta National Hospital on 2024-08-15 at 10:00 has been confirmed.'

Make sure to include the appropriate emojis.`, smsSchema)

// Composer generates SMS text for notification intents.
type Composer struct {
	model  prompt.Model
	logger *zap.Logger
}

func NewComposer(model prompt.Model, logger *zap.Logger) *Composer {
	return &Composer{model: model, logger: logger.With(zap.String("component", "notify"))}
}

// Compose returns the message text for intent. Validation failures and model
// failures are returned; a usable model answer missing required facts is
// replaced with Template(intent).
func (c *Composer) Compose(ctx context.Context, intent domain.NotificationIntent) (domain.ComposedMessage, error) {
	if err := intent.Validate(); err != nil {
		return domain.ComposedMessage{}, err
	}

	in := composeInput{
		NotificationType: string(intent.Type),
		UserName:         intent.UserName,
		ServiceRedeemed:  intent.ServiceRedeemed,
		RedemptionCode:   intent.RedemptionCode,
		SuggestedTime:    intent.SuggestedTime,
		AppointmentTime:  intent.AppointmentTime,
		HospitalName:     intent.HospitalName,
	}
	if intent.Type.ShowsBalance() {
		in.TokenBalance = fmt.Sprint(balanceOf(intent))
	}

	out, err := composePrompt.Invoke(ctx, c.model, in)
	if err != nil {
		return domain.ComposedMessage{}, err
	}

	out.SMSMessage = strings.TrimSpace(out.SMSMessage)
	if out.SMSMessage == "" {
		out.SMSMessage = Template(intent)
		c.logger.Warn("composed sms empty; using template", zap.String("type", string(intent.Type)))
	} else if missing := missingFacts(intent, out.SMSMessage); len(missing) > 0 {
		c.logger.Warn("composed sms missing facts; using template",
			zap.String("type", string(intent.Type)),
			zap.Strings("missing", missing),
		)
		out.SMSMessage = Template(intent)
	}
	return out, nil
}

type nextOfKinInput struct {
	DonorName     string
	NextOfKinName string
	HospitalName  string
}

func (in nextOfKinInput) Validate() error {
	switch {
	case strings.TrimSpace(in.DonorName) == "":
		return &domain.FieldError{Field: "donorName", Message: "is required"}
	case strings.TrimSpace(in.NextOfKinName) == "":
		return &domain.FieldError{Field: "nextOfKinName", Message: "is required"}
	case strings.TrimSpace(in.HospitalName) == "":
		return &domain.FieldError{Field: "hospitalName", Message: "is required"}
	}
	return nil
}

var nextOfKinPrompt = prompt.Must[nextOfKinInput, domain.ComposedMessage]("generateNextOfKinSms", `You are an assistant for HeroDrop+, a blood donation platform.
Your task is to generate a supportive and informative SMS for a donor's next of kin, notifying them that the donation is complete.

The message should:
1.  Congratulate the next of kin that their relative, {{.DonorName}}, has successfully donated blood.
2.  Mention the hospital name: {{.HospitalName}}.
3.  Emphasize the importance of after-care, like ensuring the donor is hydrated and rests well.
4.  Maintain a celebratory, friendly, and encouraging tone.

Example:
"Hi {{.NextOfKinName}}, great news from HeroDrop+! Your relative, {{.DonorName}}, has just completed their donation at {{.HospitalName}}. They're a true hero! Please help them rest and hydrate well. Thank you for supporting a lifesaver! ❤️"

Generate the SMS message based on the input.`, smsSchema)

// ComposeNextOfKin writes the donation-complete message for a donor's next of kin.
func (c *Composer) ComposeNextOfKin(ctx context.Context, donorName, kinName, hospital string) (domain.ComposedMessage, error) {
	out, err := nextOfKinPrompt.Invoke(ctx, c.model, nextOfKinInput{
		DonorName:     donorName,
		NextOfKinName: kinName,
		HospitalName:  hospital,
	})
	if err != nil {
		return domain.ComposedMessage{}, err
	}
	out.SMSMessage = strings.TrimSpace(out.SMSMessage)
	if out.SMSMessage == "" {
		out.SMSMessage = fmt.Sprintf("Hi %s, great news from HeroDrop+! Your relative, %s, has just completed their donation at %s. Please help them rest and hydrate well. ❤️",
			kinName, donorName, hospital)
	}
	return out, nil
}
