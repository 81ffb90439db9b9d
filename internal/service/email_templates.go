package service

import "fmt"

func verificationEmailTemplate(name, verifyURL, appName string) (string, string) {
	subject := "Please Verify Your Email Address"
	body := fmt.Sprintf(`Hi %s,

Thanks for signing up for %s. Please confirm your email address by clicking this link:
%s

The link can only be used once. If you didn't create an account, you can safely ignore this email.

Best,
The %s Team`, name, appName, verifyURL, appName)

	return subject, body
}

func passwordResetEmailTemplate(name, resetURL, appName string) (string, string) {
	subject := "Reset your password"
	body := fmt.Sprintf(`Hi %s,

You requested to reset your %s password. Set a new one here:
%s

The link can only be used once. If you didn't request this, ignore this email and your password won't change.

Best,
The %s Team`, name, appName, resetURL, appName)

	return subject, body
}
