//go:build gl

package device

// Compute shader sources for the OpenGL backend. All passes operate on
// SSBO-backed vec4 arrays using the same linear texel addressing as the
// host-side voxel package. Voxel accumulation runs through fixed-point
// integer atomics because core GLSL has no float atomicAdd; the decode pass
// converts the accumulators back to float moments.

const shaderCommon = `#version 430
layout(local_size_x = 256) in;

uint texelOf(int ix, int iy, int iz, int gs, int spr) {
	int u = (iz % spr) * gs + ix;
	int v = (iz / spr) * gs + iy;
	return uint(v * gs * spr + u);
}
`

const shaderReduceFirst = `#version 430
layout(local_size_x = 256) in;

layout(std430, binding = 0) readonly buffer Pos { vec4 pos[]; };
layout(std430, binding = 1) writeonly buffer MinOut { vec4 mn[]; };
layout(std430, binding = 2) writeonly buffer MaxOut { vec4 mx[]; };

uniform int srcW;
uniform int srcH;
uniform int dstW;
uniform int dstH;

void main() {
	uint o = gl_GlobalInvocationID.x;
	if (o >= uint(dstW * dstH)) return;
	int ox = int(o) % dstW;
	int oy = int(o) / dstW;

	vec3 lo = vec3(0.0);
	vec3 hi = vec3(0.0);
	float valid = 0.0;

	for (int dy = 0; dy < 4; dy++)
	for (int dx = 0; dx < 4; dx++) {
		int x = ox * 4 + dx;
		int y = oy * 4 + dy;
		if (x >= srcW || y >= srcH) continue;
		vec4 p = pos[y * srcW + x];
		if (p.w <= 0.0) continue;
		if (valid == 0.0) { lo = p.xyz; hi = p.xyz; valid = 1.0; }
		else { lo = min(lo, p.xyz); hi = max(hi, p.xyz); }
	}

	mn[o] = vec4(lo, valid);
	mx[o] = vec4(hi, valid);
}
`

const shaderReduceStep = `#version 430
layout(local_size_x = 256) in;

layout(std430, binding = 0) readonly buffer MinIn { vec4 mnIn[]; };
layout(std430, binding = 1) readonly buffer MaxIn { vec4 mxIn[]; };
layout(std430, binding = 2) writeonly buffer MinOut { vec4 mnOut[]; };
layout(std430, binding = 3) writeonly buffer MaxOut { vec4 mxOut[]; };

uniform int srcW;
uniform int srcH;
uniform int dstW;
uniform int dstH;

void main() {
	uint o = gl_GlobalInvocationID.x;
	if (o >= uint(dstW * dstH)) return;
	int ox = int(o) % dstW;
	int oy = int(o) / dstW;

	vec3 lo = vec3(0.0);
	vec3 hi = vec3(0.0);
	float valid = 0.0;

	for (int dy = 0; dy < 4; dy++)
	for (int dx = 0; dx < 4; dx++) {
		int x = ox * 4 + dx;
		int y = oy * 4 + dy;
		if (x >= srcW || y >= srcH) continue;
		uint i = uint(y * srcW + x);
		if (mnIn[i].w <= 0.0) continue;
		if (valid == 0.0) { lo = mnIn[i].xyz; hi = mxIn[i].xyz; valid = 1.0; }
		else { lo = min(lo, mnIn[i].xyz); hi = max(hi, mxIn[i].xyz); }
	}

	mnOut[o] = vec4(lo, valid);
	mxOut[o] = vec4(hi, valid);
}
`

const shaderAggregate = shaderCommon + `
layout(std430, binding = 0) readonly buffer Pos { vec4 pos[]; };
layout(std430, binding = 1) buffer Accum { int accum[]; }; // 12 ints per texel

uniform int numSlots;
uniform int gridSize;
uniform int slicesPerRow;
uniform vec3 boundsMin;
uniform float cellSize;
uniform float fixedScale;

void deposit(uint base, int k, float v) {
	atomicAdd(accum[base * 12u + uint(k)], int(v * fixedScale));
}

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= uint(numSlots)) return;
	vec4 p = pos[i];
	if (p.w <= 0.0) return;

	ivec3 c = clamp(ivec3(floor((p.xyz - boundsMin) / cellSize)),
		ivec3(0), ivec3(gridSize - 1));
	uint t = texelOf(c.x, c.y, c.z, gridSize, slicesPerRow);

	float m = p.w;
	deposit(t, 0, m * p.x);
	deposit(t, 1, m * p.y);
	deposit(t, 2, m * p.z);
	deposit(t, 3, m);
	deposit(t, 4, m * p.x * p.x);
	deposit(t, 5, m * p.y * p.y);
	deposit(t, 6, m * p.z * p.z);
	deposit(t, 7, m * p.x * p.y);
	deposit(t, 8, m * p.x * p.z);
	deposit(t, 9, m * p.y * p.z);
}
`

const shaderDecode = `#version 430
layout(local_size_x = 256) in;

layout(std430, binding = 0) readonly buffer Accum { int accum[]; };
layout(std430, binding = 1) writeonly buffer A0 { vec4 a0[]; };
layout(std430, binding = 2) writeonly buffer A1 { vec4 a1[]; };
layout(std430, binding = 3) writeonly buffer A2 { vec4 a2[]; };

uniform int numTexels;
uniform float fixedScale;

float dec(uint base, int k) { return float(accum[base * 12u + uint(k)]) / fixedScale; }

void main() {
	uint t = gl_GlobalInvocationID.x;
	if (t >= uint(numTexels)) return;
	a0[t] = vec4(dec(t, 0), dec(t, 1), dec(t, 2), dec(t, 3));
	a1[t] = vec4(dec(t, 4), dec(t, 5), dec(t, 6), dec(t, 7));
	a2[t] = vec4(dec(t, 8), dec(t, 9), 0.0, 0.0);
}
`

const shaderPyramid = shaderCommon + `
layout(std430, binding = 0) readonly buffer CA0 { vec4 ca0[]; };
layout(std430, binding = 1) readonly buffer CA1 { vec4 ca1[]; };
layout(std430, binding = 2) readonly buffer CA2 { vec4 ca2[]; };
layout(std430, binding = 3) writeonly buffer PA0 { vec4 pa0[]; };
layout(std430, binding = 4) writeonly buffer PA1 { vec4 pa1[]; };
layout(std430, binding = 5) writeonly buffer PA2 { vec4 pa2[]; };

uniform int childGrid;
uniform int childSpr;
uniform int parentGrid;
uniform int parentSpr;

void main() {
	uint v = gl_GlobalInvocationID.x;
	int g = parentGrid;
	if (v >= uint(g * g * g)) return;
	int px = int(v) % g;
	int py = (int(v) / g) % g;
	int pz = int(v) / (g * g);

	vec4 s0 = vec4(0.0), s1 = vec4(0.0), s2 = vec4(0.0);
	for (int dz = 0; dz < 2; dz++)
	for (int dy = 0; dy < 2; dy++)
	for (int dx = 0; dx < 2; dx++) {
		uint t = texelOf(2 * px + dx, 2 * py + dy, 2 * pz + dz, childGrid, childSpr);
		s0 += ca0[t];
		s1 += ca1[t];
		s2 += ca2[t];
	}

	uint t = texelOf(px, py, pz, parentGrid, parentSpr);
	pa0[t] = s0;
	pa1[t] = s1;
	pa2[t] = s2;
}
`

const shaderOccupancy = `#version 430
layout(local_size_x = 256) in;

layout(std430, binding = 0) readonly buffer A0 { vec4 a0[]; };
layout(std430, binding = 1) writeonly buffer Occ { vec4 occ[]; };

uniform int numTexels;

void main() {
	uint t = gl_GlobalInvocationID.x;
	if (t >= uint(numTexels)) return;
	occ[t] = vec4(a0[t].w > 0.0 ? 1.0 : 0.0, 0.0, 0.0, 0.0);
}
`

// Moments of all levels are packed into three concatenated buffers with a
// per-level offset table, so binding count stays fixed no matter how deep
// the pyramid is.
const shaderTraverse = shaderCommon + `
layout(std430, binding = 0) readonly buffer Pos { vec4 pos[]; };
layout(std430, binding = 1) readonly buffer A0 { vec4 a0[]; };
layout(std430, binding = 2) readonly buffer A1 { vec4 a1[]; };
layout(std430, binding = 3) readonly buffer A2 { vec4 a2[]; };
layout(std430, binding = 4) readonly buffer Occ { vec4 occ[]; };
layout(std430, binding = 5) readonly buffer LevelTable {
	ivec4 levelSpec[]; // x = gridSize, y = slicesPerRow, z = texel offset
};
layout(std430, binding = 6) writeonly buffer Force { vec4 force[]; };

uniform int numSlots;
uniform int numLevels;
uniform vec3 boundsMin;
uniform float maxExtent;
uniform float theta;
uniform float gravity;
uniform float softening;
uniform int useOccupancy;

const float EPS_MASS = 1e-10;
const float EPS_DIST = 1e-9;

// A voxel sharing the particle's parent cell is excluded as self at every
// coarser level, so it must be taken here even when the parent-sized test
// passes.
bool acceptAt(int level, int coarsest, float cell, float dist, bool parentIsSelf) {
	bool passHere = cell / (dist + EPS_DIST) < theta;
	bool passParent = !parentIsSelf && 2.0 * cell / (dist + EPS_DIST) < theta;
	if (coarsest == 0) return true;
	if (level == coarsest) return passHere;
	if (level == 0) return !passParent;
	return passHere && !passParent;
}

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= uint(numSlots)) return;
	vec4 p = pos[i];
	if (p.w <= 0.0) { force[i] = vec4(0.0); return; }

	vec3 x = p.xyz;
	vec3 f = vec3(0.0);
	float soft2 = softening * softening;
	int coarsest = numLevels - 1;

	for (int level = coarsest; level >= 0; level--) {
		int gs = levelSpec[level].x;
		int spr = levelSpec[level].y;
		int off = levelSpec[level].z;
		float cell = maxExtent / float(gs);
		ivec3 self = clamp(ivec3(floor((x - boundsMin) / cell)),
			ivec3(0), ivec3(gs - 1));
		ivec3 selfParent = self >> 1;
		bool hasParent = level < coarsest;

		for (int iz = 0; iz < gs; iz++)
		for (int iy = 0; iy < gs; iy++)
		for (int ix = 0; ix < gs; ix++) {
			uint t = uint(off) + texelOf(ix, iy, iz, gs, spr);
			if (useOccupancy != 0 && occ[t].x < 0.5) continue;

			vec4 m0 = a0[t];
			float mass = m0.w;
			if (mass <= EPS_MASS) continue;
			if (ix == self.x && iy == self.y && iz == self.z) continue;

			vec3 com = m0.xyz / mass;
			vec3 r = x - com;
			float dist = length(r);
			bool parentIsSelf = hasParent && (ivec3(ix, iy, iz) >> 1) == selfParent;
			if (!acceptAt(level, coarsest, cell, dist, parentIsSelf)) continue;

			float d2 = dist * dist + soft2;
			float d = sqrt(d2);
			float d3 = d2 * d;
			f -= gravity * mass * r / d3;

			if (level > 0) {
				vec4 m1 = a1[t];
				vec4 m2 = a2[t];
				float qxx = m1.x - com.x * com.x * mass;
				float qyy = m1.y - com.y * com.y * mass;
				float qzz = m1.z - com.z * com.z * mass;
				float qxy = m1.w - com.x * com.y * mass;
				float qxz = m2.x - com.x * com.z * mass;
				float qyz = m2.y - com.y * com.z * mass;

				vec3 qr = vec3(
					qxx * r.x + qxy * r.y + qxz * r.z,
					qxy * r.x + qyy * r.y + qyz * r.z,
					qxz * r.x + qyz * r.y + qzz * r.z);
				float rqr = dot(r, qr);
				float trq = qxx + qyy + qzz;
				float d5 = d2 * d2 * d;
				float d7 = d5 * d2;

				f += gravity * (3.0 * qr / d5 - 7.5 * rqr * r / d7 + 1.5 * trq * r / d5);
			}
		}
	}

	force[i] = vec4(f, 0.0);
}
`
