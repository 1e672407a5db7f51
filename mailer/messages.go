package mailer

import "fmt"

// ResetPasswordMessage builds the recovery email carrying the reset link.
func ResetPasswordMessage(frontendURL, token string) (subject, body string) {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", frontendURL, token)
	subject = "Recuperación de contraseña - Consultorio Médico"
	body = fmt.Sprintf(`
		<h2>Recuperación de contraseña</h2>
		<p>Has solicitado restablecer tu contraseña.</p>
		<p>Haz clic en el siguiente enlace para crear una nueva contraseña:</p>
		<a href="%s">Restablecer contraseña</a>
		<p>Este enlace expirará en 1 hora.</p>
		<p>Si no solicitaste este cambio, ignora este mensaje.</p>
	`, resetURL)
	return subject, body
}

// AccessRequestMessage builds the notification sent to the administrator
// when someone asks for an account. Access requests never create accounts.
func AccessRequestMessage(name, email, rol, message string) (subject, body string) {
	if message == "" {
		message = "Sin mensaje adicional"
	}
	subject = "Nueva solicitud de acceso - Consultorio Médico"
	body = fmt.Sprintf(`
		<h2>Nueva solicitud de acceso</h2>
		<p><strong>Nombre:</strong> %s</p>
		<p><strong>Email:</strong> %s</p>
		<p><strong>Rol solicitado:</strong> %s</p>
		<p><strong>Mensaje:</strong></p>
		<p>%s</p>
	`, name, email, rol, message)
	return subject, body
}
