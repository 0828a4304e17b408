// Package config loads platform configuration from environment variables.
//
// The reserved super-roles that bypass permission grants are configuration,
// not stored data: they come from DESKFORGE_SUPER_ROLES and can optionally
// be kept in a file watched for live reload.
package config
