package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalRole(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"admin", RolAdmin, true},
		{"doctor", RolDoctor, true},
		{"receptionist", RolRecepcionista, true},
		{"administrador", RolAdmin, true},
		{"medico", RolDoctor, true},
		{"recepcionista", RolRecepcionista, true},
		{"paciente", "", false},
		{"", "", false},
		{"ADMIN", "", false},
	}

	for _, tc := range cases {
		got, ok := CanonicalRole(tc.in)
		assert.Equal(t, tc.ok, ok, "rol %q", tc.in)
		assert.Equal(t, tc.want, got, "rol %q", tc.in)
	}
}

func TestEstaBloqueado(t *testing.T) {
	now := time.Now()
	futuro := now.Add(10 * time.Minute)
	pasado := now.Add(-10 * time.Minute)

	activo := &Usuario{Activo: true}
	assert.False(t, activo.EstaBloqueado(now))

	inactivo := &Usuario{Activo: false}
	assert.True(t, inactivo.EstaBloqueado(now))

	bloqueado := &Usuario{Activo: true, BloqueadoHasta: &futuro}
	assert.True(t, bloqueado.EstaBloqueado(now))

	// A lock window in the past unlocks the account implicitly.
	vencido := &Usuario{Activo: true, BloqueadoHasta: &pasado, IntentosFallidos: 3}
	assert.False(t, vencido.EstaBloqueado(now))
}

func TestTienePermiso(t *testing.T) {
	u := &Usuario{Permisos: []string{"pacientes.ver", "turnos.crear"}}

	assert.True(t, u.TienePermiso("pacientes.ver"))
	assert.False(t, u.TienePermiso("usuarios.eliminar"))

	vacio := &Usuario{}
	assert.False(t, vacio.TienePermiso("pacientes.ver"))
}

func TestDefaultPermisos(t *testing.T) {
	admin := DefaultPermisos(RolAdmin)
	assert.Contains(t, admin, "usuarios.crear")
	assert.Contains(t, admin, "configuracion.editar")

	doctor := DefaultPermisos(RolDoctor)
	assert.Contains(t, doctor, "historiales.crear")
	assert.NotContains(t, doctor, "usuarios.crear")

	recepcion := DefaultPermisos(RolRecepcionista)
	assert.Contains(t, recepcion, "turnos.crear")
	assert.NotContains(t, recepcion, "historiales.ver")

	assert.Empty(t, DefaultPermisos("desconocido"))

	// Mutating the returned slice must not leak into the defaults.
	doctor[0] = "otra.cosa"
	assert.Contains(t, DefaultPermisos(RolDoctor), "pacientes.crear")
}
